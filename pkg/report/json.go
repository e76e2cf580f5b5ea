package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// JSON writes a machine-readable report with a stable schema.
type JSON struct {
	Indent bool
}

type jsonReport struct {
	Summary   Summary        `json:"summary"`
	Scenarios []jsonScenario `json:"scenarios"`
}

type jsonScenario struct {
	ID          string     `json:"id"`
	Feature     string     `json:"feature"`
	Scenario    string     `json:"scenario"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	DurationMS  float64    `json:"duration_ms"`
	Steps       []jsonStep `json:"steps"`
	Cleanups    []jsonStep `json:"cleanups"`
}

type jsonStep struct {
	Kind       string  `json:"kind"`
	Title      string  `json:"title"`
	Phase      string  `json:"phase"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func toJSONSteps(results []api.StepResult) []jsonStep {
	out := make([]jsonStep, 0, len(results))
	for _, r := range results {
		out = append(out, jsonStep{
			Kind:       r.Kind,
			Title:      r.Title,
			Phase:      r.Phase.String(),
			Status:     r.Status(),
			Error:      stepError(r),
			DurationMS: millis(r.Elapsed),
		})
	}
	return out
}

func (j *JSON) Report(w io.Writer, scs []*api.ScenarioContext) error {
	rep := jsonReport{
		Summary:   Summarize(scs),
		Scenarios: make([]jsonScenario, 0, len(scs)),
	}
	for _, sc := range scs {
		if sc == nil {
			continue
		}
		js := jsonScenario{
			ID:          sc.ID,
			Feature:     sc.FeatureName,
			Scenario:    sc.ScenarioName,
			Description: sc.Description,
			Tags:        sc.Tags(),
			Status:      scenarioStatus(sc),
			StartedAt:   sc.StartedAt,
			FinishedAt:  sc.FinishedAt,
			DurationMS:  millis(sc.Duration()),
			Steps:       toJSONSteps(sc.Steps()),
			Cleanups:    toJSONSteps(sc.Cleanups()),
		}
		if js.Tags == nil {
			js.Tags = []string{}
		}
		if err := sc.Err(); err != nil {
			js.Error = err.Error()
		}
		rep.Scenarios = append(rep.Scenarios, js)
	}

	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}
