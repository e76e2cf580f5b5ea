package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// HistoryObserver is an api.Observer that appends scenario events to an
// EventStore and archives every finished run into a RunStore. Either store
// may be nil. Store errors are logged and never change a scenario outcome.
type HistoryObserver struct {
	runs   RunStore
	events EventStore
	logger *slog.Logger
	now    func() time.Time
}

var _ api.Observer = (*HistoryObserver)(nil)

// NewHistoryObserver wires p into an observer. A nil logger uses
// slog.Default().
func NewHistoryObserver(p Persistence, logger *slog.Logger) *HistoryObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryObserver{
		runs:   p.Runs,
		events: p.Events,
		logger: logger,
		now:    time.Now,
	}
}

func (h *HistoryObserver) append(ctx context.Context, sc *api.ScenarioContext, typ api.EventType, step int, kind, detail string) {
	if h.events == nil {
		return
	}
	ev := api.ScenarioEvent{
		ScenarioID:   sc.ID,
		At:           h.now(),
		Type:         typ,
		FeatureName:  sc.FeatureName,
		ScenarioName: sc.ScenarioName,
		Step:         step,
		Kind:         kind,
		Detail:       detail,
	}
	if err := h.events.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		h.logger.Warn("history_event_failed",
			slog.String("scenario_id", sc.ID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}

func (h *HistoryObserver) archive(ctx context.Context, sc *api.ScenarioContext) {
	if h.runs == nil {
		return
	}
	if err := ArchiveScenario(context.WithoutCancel(ctx), h.runs, sc); err != nil {
		h.logger.Warn("history_archive_failed",
			slog.String("scenario_id", sc.ID),
			slog.Any("error", err),
		)
	}
}

func (h *HistoryObserver) OnScenarioStart(ctx context.Context, sc *api.ScenarioContext) {
	h.append(ctx, sc, api.EventScenarioStarted, -1, "", "")
}

func (h *HistoryObserver) OnScenarioCompleted(ctx context.Context, sc *api.ScenarioContext) {
	h.append(ctx, sc, api.EventScenarioCompleted, -1, "", "")
	h.archive(ctx, sc)
}

func (h *HistoryObserver) OnScenarioFailed(ctx context.Context, sc *api.ScenarioContext, err error) {
	h.append(ctx, sc, api.EventScenarioFailed, -1, "", errString(err))
	h.archive(ctx, sc)
}

func (h *HistoryObserver) OnStepStart(ctx context.Context, sc *api.ScenarioContext, meta api.StepMetadata, index int) {
	h.append(ctx, sc, api.EventStepStarted, index, meta.Kind, meta.EffectiveTitle())
}

func (h *HistoryObserver) OnStepCompleted(ctx context.Context, sc *api.ScenarioContext, result api.StepResult, index int) {
	if result.Err != nil {
		h.append(ctx, sc, api.EventStepFailed, index, result.Kind, result.Title+": "+result.Err.Error())
		return
	}
	h.append(ctx, sc, api.EventStepCompleted, index, result.Kind, result.Title)
}

func (h *HistoryObserver) OnStepSkipped(ctx context.Context, sc *api.ScenarioContext, result api.StepResult, index int) {
	h.append(ctx, sc, api.EventStepSkipped, index, result.Kind, result.Title)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
