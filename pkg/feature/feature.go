// Package feature loads scenarios from files and runs them.
//
// Two formats are understood. Gherkin, parsed with the Cucumber parser:
//
//	@billing
//	Feature: Checkout
//	  Free text describing the feature.
//
//	  Background:
//	    Given the value is 10
//
//	  @smoke
//	  Scenario: applies a discount
//	    When I multiply by 0.5
//	    Then the value should be 5
//	    And `value > 0`
//
//	  Scenario Outline: adds <n>
//	    When I add <n>
//	    Then the value should be <sum>
//
//	    Examples:
//	      | n | sum |
//	      | 1 | 11  |
//
// and YAML with the same structure (see LoadYAML). Rules are flattened
// into their scenarios and outlines are expanded per Examples row. Step
// text is matched against a Registry of regular expressions; text wrapped
// in backticks is a JavaScript expression evaluated with goja. A step's doc
// string is passed to its handler as the last argument; its data table is
// available through StepTable.
package feature

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// Step is one declared step line.
type Step struct {
	Word api.Word

	// Phase is the declared phase of a primary step. It is meaningless for
	// And/But steps, whose phase is resolved when the scenario is built.
	Phase api.Phase

	Text string

	// Expr is a JavaScript expression. When set, Text is only a title.
	Expr string

	DocString *string
	Table     [][]string

	Line int
}

// Keyword returns the keyword the step was declared with.
func (s Step) Keyword() string {
	return api.KindOf(s.Phase, s.Word)
}

type tableKey struct{}

// StepTable returns the data table declared under the running step.
func StepTable(ctx context.Context) ([][]string, bool) {
	t, ok := ctx.Value(tableKey{}).([][]string)
	return t, ok
}

func withTable(fn api.StepFunc, table [][]string) api.StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		return fn(context.WithValue(ctx, tableKey{}, table), value)
	}
}

// Scenario is one named list of steps.
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	Steps       []Step
	Line        int
}

// Options overrides parts of the executor options for one feature. Nil
// fields leave the executor's value alone.
type Options struct {
	ContinueOnError                 *bool
	HaltOnFailedAssertion           *bool
	MarkRemainingAsSkippedOnFailure *bool
	StepTimeout                     *time.Duration
}

// Apply returns base with the overrides applied.
func (o Options) Apply(base api.Options) api.Options {
	if o.ContinueOnError != nil {
		base.ContinueOnError = *o.ContinueOnError
	}
	if o.HaltOnFailedAssertion != nil {
		base.HaltOnFailedAssertion = *o.HaltOnFailedAssertion
	}
	if o.MarkRemainingAsSkippedOnFailure != nil {
		base.MarkRemainingAsSkippedOnFailure = *o.MarkRemainingAsSkippedOnFailure
	}
	if o.StepTimeout != nil {
		base.StepTimeout = *o.StepTimeout
	}
	return base
}

// Feature is a parsed feature file.
type Feature struct {
	Path        string
	Name        string
	Description string
	Tags        []string
	Options     Options
	Background  []Step
	Scenarios   []Scenario
}

// ParseError reports a problem at a position of a feature file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// LoadFile parses path as Gherkin (.feature) or YAML (.yaml, .yml).
func LoadFile(path string) (*Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".feature":
		return ParseGherkin(string(data), path)
	case ".yaml", ".yml":
		return LoadYAML(data, path)
	default:
		return nil, &ParseError{Path: path, Msg: "unsupported file type"}
	}
}

// IsFeatureFile reports whether path has an extension LoadFile understands.
func IsFeatureFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".feature", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadPaths loads every feature file in paths. Directories are walked
// recursively. Features are returned sorted by path.
func LoadPaths(paths []string) ([]*Feature, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsFeatureFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)

	features := make([]*Feature, 0, len(files))
	for _, f := range files {
		feat, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		features = append(features, feat)
	}
	return features, nil
}
