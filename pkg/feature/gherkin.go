package feature

import (
	"bufio"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/petrijr/stepflow/pkg/api"
)

// errLocation picks the first "(line:column)" out of a Gherkin parser error.
var errLocation = regexp.MustCompile(`\((\d+):\d+\)`)

// ParseGherkin parses src with the Cucumber Gherkin parser and flattens
// the document into a Feature. Rules contribute their tags and background
// to each of their scenarios; a Scenario Outline becomes one scenario per
// Examples row. path is only used in error messages.
func ParseGherkin(src, path string) (*Feature, error) {
	line := 0
	for l := range strings.Lines(src) {
		line++
		if len(l) >= bufio.MaxScanTokenSize {
			return nil, &ParseError{Path: path, Line: line, Msg: fmt.Sprintf("line longer than %d bytes", bufio.MaxScanTokenSize)}
		}
	}

	doc, err := gherkin.ParseGherkinDocument(strings.NewReader(src), (&messages.Incrementing{}).NewId)
	if err != nil {
		return nil, gherkinError(path, err)
	}
	if doc.Feature == nil {
		return nil, &ParseError{Path: path, Msg: "no Feature: line"}
	}

	f := doc.Feature
	feat := &Feature{
		Path:        path,
		Name:        f.Name,
		Description: trimDescription(f.Description),
		Tags:        tagNames(f.Tags),
	}
	for _, child := range f.Children {
		switch {
		case child.Background != nil:
			feat.Background = convertSteps(child.Background.Steps)
		case child.Scenario != nil:
			feat.Scenarios = append(feat.Scenarios, expandScenario(child.Scenario, nil, nil)...)
		case child.Rule != nil:
			rule := child.Rule
			var background []Step
			for _, rc := range rule.Children {
				switch {
				case rc.Background != nil:
					background = convertSteps(rc.Background.Steps)
				case rc.Scenario != nil:
					feat.Scenarios = append(feat.Scenarios, expandScenario(rc.Scenario, background, tagNames(rule.Tags))...)
				}
			}
		}
	}
	return feat, nil
}

func gherkinError(path string, err error) error {
	msg := strings.TrimPrefix(err.Error(), "Parser errors:\n")
	pe := &ParseError{Path: path, Msg: msg}
	if m := errLocation.FindStringSubmatch(msg); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
	}
	return pe
}

func tagNames(tags []*messages.Tag) []string {
	var out []string
	for _, t := range tags {
		out = append(out, strings.TrimPrefix(t.Name, "@"))
	}
	return out
}

func trimDescription(d string) string {
	lines := strings.Split(d, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func convertSteps(steps []*messages.Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, convertStep(s))
	}
	return out
}

// convertStep maps a Gherkin step by keyword type, so localized keywords
// work too. "*" and the first-step conjunctions continue the current phase.
func convertStep(s *messages.Step) Step {
	step := Step{Text: strings.TrimSpace(s.Text)}
	if s.Location != nil {
		step.Line = int(s.Location.Line)
	}
	switch s.KeywordType {
	case messages.StepKeywordType_CONTEXT:
		step.Phase, step.Word = api.PhaseGiven, api.WordPrimary
	case messages.StepKeywordType_ACTION:
		step.Phase, step.Word = api.PhaseWhen, api.WordPrimary
	case messages.StepKeywordType_OUTCOME:
		step.Phase, step.Word = api.PhaseThen, api.WordPrimary
	default:
		step.Word = api.ParseWord(strings.TrimSpace(s.Keyword))
		if step.Word == api.WordPrimary {
			step.Word = api.WordAnd
		}
	}
	if s.DocString != nil {
		doc := s.DocString.Content
		step.DocString = &doc
	}
	if s.DataTable != nil {
		step.Table = tableRows(s.DataTable.Rows)
	}
	if len(step.Text) > 1 && strings.HasPrefix(step.Text, "`") && strings.HasSuffix(step.Text, "`") {
		step.Expr = strings.Trim(step.Text, "`")
	}
	return step
}

func tableRows(rows []*messages.TableRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, cellValues(r))
	}
	return out
}

func cellValues(r *messages.TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		out = append(out, c.Value)
	}
	return out
}

// expandScenario converts s, prefixing the rule's background and tags.
// Outline placeholders are substituted in the scenario's own steps only.
func expandScenario(s *messages.Scenario, background []Step, ruleTags []string) []Scenario {
	base := Scenario{
		Name:        s.Name,
		Description: trimDescription(s.Description),
		Tags:        append(slices.Clone(ruleTags), tagNames(s.Tags)...),
	}
	if s.Location != nil {
		base.Line = int(s.Location.Line)
	}
	own := convertSteps(s.Steps)
	if len(s.Examples) == 0 {
		base.Steps = append(slices.Clone(background), own...)
		return []Scenario{base}
	}

	var out []Scenario
	for _, ex := range s.Examples {
		header := cellValues(ex.TableHeader)
		for _, row := range ex.TableBody {
			values := cellValues(row)
			pairs := make([]string, 0, 2*len(header))
			for i, h := range header {
				if i < len(values) {
					pairs = append(pairs, "<"+h+">", values[i])
				}
			}
			r := strings.NewReplacer(pairs...)

			sc := base
			sc.Name = r.Replace(base.Name)
			if sc.Name == base.Name {
				sc.Name = fmt.Sprintf("%s (%s)", base.Name, strings.Join(values, ", "))
			}
			sc.Tags = append(slices.Clone(base.Tags), tagNames(ex.Tags)...)
			if row.Location != nil {
				sc.Line = int(row.Location.Line)
			}
			sc.Steps = slices.Clone(background)
			for _, st := range own {
				sc.Steps = append(sc.Steps, st.substitute(r))
			}
			out = append(out, sc)
		}
	}
	return out
}

func (s Step) substitute(r *strings.Replacer) Step {
	s.Text = r.Replace(s.Text)
	s.Expr = r.Replace(s.Expr)
	if s.DocString != nil {
		doc := r.Replace(*s.DocString)
		s.DocString = &doc
	}
	if s.Table != nil {
		table := make([][]string, len(s.Table))
		for i, row := range s.Table {
			table[i] = make([]string, len(row))
			for j, cell := range row {
				table[i][j] = r.Replace(cell)
			}
		}
		s.Table = table
	}
	return s
}
