// Package report renders finished scenarios for people and tools.
//
// Reporters only read ScenarioContexts after their runs finished. Four
// formats are available: plain or colored text, JSON, Markdown and HTML.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// Reporter writes a report of scs to w.
type Reporter interface {
	Report(w io.Writer, scs []*api.ScenarioContext) error
}

// New returns the reporter for format: text, json, markdown (or md), html.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &Text{Color: true}, nil
	case "json":
		return &JSON{Indent: true}, nil
	case "markdown", "md":
		return &Markdown{}, nil
	case "html":
		return &HTML{}, nil
	}
	return nil, fmt.Errorf("report: unknown format %q", format)
}

// Summary counts scenario and step outcomes.
type Summary struct {
	Scenarios       int `json:"scenarios"`
	ScenariosPassed int `json:"scenarios_passed"`
	ScenariosFailed int `json:"scenarios_failed"`
	Steps           int `json:"steps"`
	StepsPassed     int `json:"steps_passed"`
	StepsFailed     int `json:"steps_failed"`
	StepsSkipped    int `json:"steps_skipped"`
	Cleanups        int `json:"cleanups"`
	CleanupsFailed  int `json:"cleanups_failed"`
}

// Summarize counts outcomes across scs. Nil entries are ignored.
func Summarize(scs []*api.ScenarioContext) Summary {
	var s Summary
	for _, sc := range scs {
		if sc == nil {
			continue
		}
		s.Scenarios++
		if sc.Passed() {
			s.ScenariosPassed++
		} else {
			s.ScenariosFailed++
		}
		for _, r := range sc.Steps() {
			s.Steps++
			switch {
			case r.Skipped():
				s.StepsSkipped++
			case r.Passed():
				s.StepsPassed++
			default:
				s.StepsFailed++
			}
		}
		for _, r := range sc.Cleanups() {
			s.Cleanups++
			if !r.Passed() {
				s.CleanupsFailed++
			}
		}
	}
	return s
}

func (s Summary) String() string {
	out := fmt.Sprintf("%d scenarios (%d passed, %d failed), %d steps (%d passed, %d failed, %d skipped)",
		s.Scenarios, s.ScenariosPassed, s.ScenariosFailed,
		s.Steps, s.StepsPassed, s.StepsFailed, s.StepsSkipped)
	if s.CleanupsFailed > 0 {
		out += fmt.Sprintf(", %d of %d cleanups failed", s.CleanupsFailed, s.Cleanups)
	}
	return out
}

// featureGroup keeps scenarios of one feature in first-seen order.
type featureGroup struct {
	name        string
	description string
	scenarios   []*api.ScenarioContext
}

func groupByFeature(scs []*api.ScenarioContext) []*featureGroup {
	var groups []*featureGroup
	index := map[string]*featureGroup{}
	for _, sc := range scs {
		if sc == nil {
			continue
		}
		g, ok := index[sc.FeatureName]
		if !ok {
			g = &featureGroup{name: sc.FeatureName, description: sc.FeatureDescription}
			index[sc.FeatureName] = g
			groups = append(groups, g)
		}
		g.scenarios = append(g.scenarios, sc)
	}
	return groups
}

func scenarioStatus(sc *api.ScenarioContext) string {
	if sc.Passed() {
		return "passed"
	}
	return "failed"
}

func stepError(r api.StepResult) string {
	if r.Err == nil || r.Skipped() {
		return ""
	}
	return r.Err.Error()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(100 * time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
