package persistence

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// InMemoryRunStore is a goroutine-safe RunStore backed by a map.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]api.RunRecord
}

// NewInMemoryRunStore creates an empty InMemoryRunStore.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs: make(map[string]api.RunRecord),
	}
}

var _ RunStore = (*InMemoryRunStore)(nil)

func (s *InMemoryRunStore) SaveRun(ctx context.Context, rec api.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[rec.ID]; ok {
		return ErrDuplicateRun
	}
	s.runs[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return api.RunRecord{}, ErrRunNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter api.RunFilter) ([]api.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if filter.FeatureName != "" && rec.FeatureName != filter.FeatureName {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, cloneRecord(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneRecord(rec api.RunRecord) api.RunRecord {
	rec.Tags = slices.Clone(rec.Tags)
	rec.Steps = slices.Clone(rec.Steps)
	rec.Cleanups = slices.Clone(rec.Cleanups)
	rec.FinalValue = slices.Clone(rec.FinalValue)
	return rec
}

// InMemoryEventStore keeps scenario events in memory, grouped by scenario.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.ScenarioEvent
}

// NewInMemoryEventStore creates an empty InMemoryEventStore.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events: make(map[string][]api.ScenarioEvent),
	}
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev api.ScenarioEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ScenarioID] = append(s.events[ev.ScenarioID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, scenarioID string) ([]api.ScenarioEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[scenarioID]), nil
}
