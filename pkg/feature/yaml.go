package feature

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/stepflow/pkg/api"
)

type yamlFeature struct {
	Feature     string         `yaml:"feature"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	Options     yamlOptions    `yaml:"options"`
	Background  []yamlStep     `yaml:"background"`
	Scenarios   []yamlScenario `yaml:"scenarios"`
}

type yamlOptions struct {
	ContinueOnError       *bool  `yaml:"continue_on_error"`
	HaltOnFailedAssertion *bool  `yaml:"halt_on_failed_assertion"`
	MarkSkipped           *bool  `yaml:"mark_remaining_as_skipped"`
	StepTimeout           string `yaml:"step_timeout"`
}

type yamlScenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tags        []string   `yaml:"tags"`
	Steps       []yamlStep `yaml:"steps"`
}

// yamlStep carries exactly one keyword field.
type yamlStep struct {
	Given string `yaml:"given"`
	When  string `yaml:"when"`
	Then  string `yaml:"then"`
	And   string `yaml:"and"`
	But   string `yaml:"but"`
	Expr  string `yaml:"expr"`

	line int
}

func (s *yamlStep) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlStep
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = yamlStep(p)
	s.line = node.Line
	return nil
}

func (s yamlStep) toStep() (Step, error) {
	type candidate struct {
		text  string
		word  api.Word
		phase api.Phase
	}
	var set []candidate
	for _, c := range []candidate{
		{s.Given, api.WordPrimary, api.PhaseGiven},
		{s.When, api.WordPrimary, api.PhaseWhen},
		{s.Then, api.WordPrimary, api.PhaseThen},
		{s.And, api.WordAnd, api.PhaseGiven},
		{s.But, api.WordBut, api.PhaseGiven},
	} {
		if c.text != "" {
			set = append(set, c)
		}
	}
	if len(set) != 1 {
		return Step{}, fmt.Errorf("step needs exactly one of given, when, then, and, but (got %d)", len(set))
	}
	c := set[0]
	return Step{
		Word:  c.word,
		Phase: c.phase,
		Text:  strings.TrimSpace(c.text),
		Expr:  strings.TrimSpace(s.Expr),
		Line:  s.line,
	}, nil
}

// LoadYAML parses a feature written as YAML:
//
//	feature: Checkout
//	description: Discounts apply at checkout.
//	tags: [billing]
//	options:
//	  continue_on_error: false
//	  step_timeout: 2s
//	background:
//	  - given: the value is 10
//	scenarios:
//	  - name: applies a discount
//	    tags: [smoke]
//	    steps:
//	      - when: I multiply by 0.5
//	      - then: the value should be 5
//	      - and: the value is positive
//	        expr: value > 0
//
// path is only used in error messages.
func LoadYAML(data []byte, path string) (*Feature, error) {
	var doc yamlFeature
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Msg: err.Error()}
	}
	if strings.TrimSpace(doc.Feature) == "" {
		return nil, &ParseError{Path: path, Msg: "missing feature name"}
	}

	feat := &Feature{
		Path:        path,
		Name:        strings.TrimSpace(doc.Feature),
		Description: strings.TrimSpace(doc.Description),
		Tags:        doc.Tags,
		Options: Options{
			ContinueOnError:                 doc.Options.ContinueOnError,
			HaltOnFailedAssertion:           doc.Options.HaltOnFailedAssertion,
			MarkRemainingAsSkippedOnFailure: doc.Options.MarkSkipped,
		},
	}
	if doc.Options.StepTimeout != "" {
		d, err := time.ParseDuration(doc.Options.StepTimeout)
		if err != nil {
			return nil, &ParseError{Path: path, Msg: "options.step_timeout: " + err.Error()}
		}
		feat.Options.StepTimeout = &d
	}

	var err error
	if feat.Background, err = convertSteps(doc.Background, path); err != nil {
		return nil, err
	}
	for i, ys := range doc.Scenarios {
		if strings.TrimSpace(ys.Name) == "" {
			return nil, &ParseError{Path: path, Msg: fmt.Sprintf("scenario %d has no name", i+1)}
		}
		steps, err := convertSteps(ys.Steps, path)
		if err != nil {
			return nil, err
		}
		feat.Scenarios = append(feat.Scenarios, Scenario{
			Name:        strings.TrimSpace(ys.Name),
			Description: strings.TrimSpace(ys.Description),
			Tags:        ys.Tags,
			Steps:       steps,
		})
	}
	return feat, nil
}

func convertSteps(in []yamlStep, path string) ([]Step, error) {
	out := make([]Step, 0, len(in))
	for _, ys := range in {
		s, err := ys.toStep()
		if err != nil {
			return nil, &ParseError{Path: path, Line: ys.line, Msg: err.Error()}
		}
		out = append(out, s)
	}
	return out, nil
}
