package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/stepflow/pkg/api"
)

var (
	// ErrRunNotFound is returned when an archived run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when a run with the same ID was already saved.
	ErrDuplicateRun = errors.New("run already archived")
)

// RunStore archives finished scenario runs. Records are written once.
type RunStore interface {
	SaveRun(ctx context.Context, rec api.RunRecord) error
	GetRun(ctx context.Context, id string) (api.RunRecord, error)
	// ListRuns returns matching runs, most recently finished first.
	ListRuns(ctx context.Context, filter api.RunFilter) ([]api.RunRecord, error)
}

// ArchiveScenario saves a finished scenario into store, encoding its final
// value when possible.
func ArchiveScenario(ctx context.Context, store RunStore, sc *api.ScenarioContext) error {
	rec := api.NewRunRecord(sc)
	if b, err := EncodeValue(sc.CurrentItem()); err == nil {
		rec.FinalValue = b
	}
	return store.SaveRun(ctx, rec)
}
