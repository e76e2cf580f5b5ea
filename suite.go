package stepflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/internal/taskqueue"
	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/worker"
)

// RunStore and EventStore are re-exported so callers can plug their own
// archive into a Suite.
type (
	RunStore   = persistence.RunStore
	EventStore = persistence.EventStore
	RunRecord  = api.RunRecord
	RunFilter  = api.RunFilter
)

// SuiteConfig tunes a Suite. The zero value runs scenarios one at a time
// without archiving.
type SuiteConfig struct {
	// Workers is the number of scenarios run concurrently. Values below 1
	// mean 1.
	Workers int

	// Runs archives every finished scenario when set.
	Runs RunStore

	// Events receives scenario events from Observer() when set.
	Events EventStore

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Suite runs independent scenarios on a pool of workers fed by an
// in-memory task queue. Each scenario still runs on a single goroutine.
//
// Typical usage:
//
//	suite := stepflow.NewSuite(stepflow.SuiteConfig{Workers: 4})
//	res, err := suite.Run(ctx, scenarioA, scenarioB, scenarioC)
type Suite struct {
	cfg      SuiteConfig
	logger   *slog.Logger
	observer api.Observer
}

// NewSuite creates a Suite from cfg.
func NewSuite(cfg SuiteConfig) *Suite {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Suite{cfg: cfg, logger: logger, observer: api.NoopObserver{}}
	if cfg.Events != nil {
		s.observer = persistence.NewHistoryObserver(persistence.Persistence{Events: cfg.Events}, logger)
	}
	return s
}

// Observer returns an observer that records scenario events into the
// suite's EventStore. Attach it to scenarios with WithObserver. It is a
// no-op when the suite has no EventStore.
func (s *Suite) Observer() Observer {
	return s.observer
}

// History returns the suite's archive, if any.
func (s *Suite) History() RunStore {
	return s.cfg.Runs
}

// SuiteResult holds the outcome of Suite.Run, in submission order.
type SuiteResult struct {
	Scenarios []*ScenarioContext
	Errors    []error
	Duration  time.Duration
}

// Passed reports whether every scenario passed.
func (r *SuiteResult) Passed() bool {
	return r.FailedCount() == 0
}

// FailedCount returns the number of scenarios that failed or could not run.
func (r *SuiteResult) FailedCount() int {
	n := 0
	for i, sc := range r.Scenarios {
		if r.Errors[i] != nil || sc == nil || sc.Failed() {
			n++
		}
	}
	return n
}

// Run executes runners and waits for all of them. Scenario failures are
// reported in the result; the returned error is non-nil only when ctx was
// cancelled before every scenario could run.
func (s *Suite) Run(ctx context.Context, runners ...ScenarioRunner) (*SuiteResult, error) {
	start := time.Now()
	res := &SuiteResult{
		Scenarios: make([]*ScenarioContext, len(runners)),
		Errors:    make([]error, len(runners)),
	}
	if len(runners) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	q := taskqueue.NewInMemoryQueue(len(runners))
	w := worker.New(q, worker.Config{
		Logger: s.logger,
		OnResult: func(r worker.Result) {
			s.archive(ctx, r)
			mu.Lock()
			defer mu.Unlock()
			res.Scenarios[r.Task.Index] = r.Scenario
			res.Errors[r.Task.Index] = r.Err
		},
	})

	for i, r := range runners {
		if err := w.Enqueue(ctx, i, r); err != nil {
			q.Close()
			return res, err
		}
	}
	q.Close()

	workers := min(s.cfg.Workers, len(runners))
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	err := g.Wait()
	res.Duration = time.Since(start)

	s.logger.Info("suite_finished",
		slog.Int("scenarios", len(runners)),
		slog.Int("failed", res.FailedCount()),
		slog.Int("workers", workers),
		slog.Duration("duration", res.Duration),
	)
	return res, err
}

func (s *Suite) archive(ctx context.Context, r worker.Result) {
	if s.cfg.Runs == nil || r.Scenario == nil {
		return
	}
	if err := persistence.ArchiveScenario(context.WithoutCancel(ctx), s.cfg.Runs, r.Scenario); err != nil {
		s.logger.Warn("suite_archive_failed",
			slog.String("scenario_id", r.Scenario.ID),
			slog.Any("error", err),
		)
	}
}
