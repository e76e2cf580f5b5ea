// Package metrics exports scenario and step outcomes as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/stepflow/pkg/api"
)

// Observer is an api.Observer that records Prometheus metrics. It is safe
// for concurrent use by many pipelines.
type Observer struct {
	api.NoopObserver

	scenariosStarted *prometheus.CounterVec
	scenariosPassed  *prometheus.CounterVec
	scenariosFailed  *prometheus.CounterVec
	running          prometheus.Gauge
	stepDuration     *prometheus.HistogramVec
	stepsSkipped     *prometheus.CounterVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		scenariosStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_scenarios_started_total",
			Help: "Scenarios that started running.",
		}, []string{"feature"}),
		scenariosPassed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_scenarios_passed_total",
			Help: "Scenarios that finished with every step passing.",
		}, []string{"feature"}),
		scenariosFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_scenarios_failed_total",
			Help: "Scenarios that finished with a failure.",
		}, []string{"feature"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stepflow_scenarios_running",
			Help: "Scenarios currently running.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stepflow_step_duration_seconds",
			Help:    "Duration of executed steps.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"phase", "outcome"}),
		stepsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_steps_skipped_total",
			Help: "Steps skip-marked after an early stop.",
		}, []string{"phase"}),
	}
	for _, c := range []prometheus.Collector{
		o.scenariosStarted, o.scenariosPassed, o.scenariosFailed,
		o.running, o.stepDuration, o.stepsSkipped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MustNewObserver is like NewObserver but panics on error.
func MustNewObserver(reg prometheus.Registerer) *Observer {
	o, err := NewObserver(reg)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *Observer) OnScenarioStart(ctx context.Context, sc *api.ScenarioContext) {
	o.scenariosStarted.WithLabelValues(sc.FeatureName).Inc()
	o.running.Inc()
}

// OnScenarioCompleted counts a scenario without a fatal error. It may still
// hold failed steps when ContinueOnError is set; those count as failed.
func (o *Observer) OnScenarioCompleted(ctx context.Context, sc *api.ScenarioContext) {
	o.running.Dec()
	if sc.Passed() {
		o.scenariosPassed.WithLabelValues(sc.FeatureName).Inc()
		return
	}
	o.scenariosFailed.WithLabelValues(sc.FeatureName).Inc()
}

func (o *Observer) OnScenarioFailed(ctx context.Context, sc *api.ScenarioContext, err error) {
	o.running.Dec()
	o.scenariosFailed.WithLabelValues(sc.FeatureName).Inc()
}

func (o *Observer) OnStepCompleted(ctx context.Context, sc *api.ScenarioContext, r api.StepResult, index int) {
	outcome := "passed"
	if r.Err != nil {
		outcome = api.Classify(ctx, r.Err).String()
	}
	o.stepDuration.WithLabelValues(r.Phase.String(), outcome).Observe(r.Elapsed.Seconds())
}

func (o *Observer) OnStepSkipped(ctx context.Context, sc *api.ScenarioContext, r api.StepResult, index int) {
	o.stepsSkipped.WithLabelValues(r.Phase.String()).Inc()
}
