package persistence

import (
	"context"

	"github.com/petrijr/stepflow/pkg/api"
)

// EventStore is an append-only log of scenario events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.ScenarioEvent) error
	ListEvents(ctx context.Context, scenarioID string) ([]api.ScenarioEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.ScenarioEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, scenarioID string) ([]api.ScenarioEvent, error) {
	return nil, nil
}
