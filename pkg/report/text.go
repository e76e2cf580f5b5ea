package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/petrijr/stepflow/pkg/api"
)

// Text writes a human-readable report. With Color set, styles follow the
// color support of the destination; without it the output is plain.
type Text struct {
	Color bool
}

type textStyles struct {
	feature lipgloss.Style
	passed  lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	muted   lipgloss.Style
	summary lipgloss.Style
}

func newTextStyles(w io.Writer, color bool) textStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return textStyles{plain, plain, plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return textStyles{
		feature: r.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		passed:  r.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		skipped: r.NewStyle().Foreground(lipgloss.Color("245")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
		summary: r.NewStyle().Bold(true),
	}
}

func (s textStyles) forStep(r api.StepResult) (lipgloss.Style, string) {
	switch {
	case r.Skipped():
		return s.skipped, "-"
	case r.Passed():
		return s.passed, "✓"
	default:
		return s.failed, "✗"
	}
}

func (t *Text) Report(w io.Writer, scs []*api.ScenarioContext) error {
	st := newTextStyles(w, t.Color)
	var b strings.Builder

	for _, g := range groupByFeature(scs) {
		fmt.Fprintln(&b, st.feature.Render("Feature: "+g.name))
		for _, sc := range g.scenarios {
			mark, style := "✓", st.passed
			if sc.Failed() {
				mark, style = "✗", st.failed
			}
			line := fmt.Sprintf("  %s Scenario: %s", mark, sc.ScenarioName)
			extra := " " + st.muted.Render("("+formatDuration(sc.Duration())+")")
			if tags := sc.Tags(); len(tags) > 0 {
				extra += " " + st.muted.Render("@"+strings.Join(tags, " @"))
			}
			fmt.Fprintln(&b, style.Render(line)+extra)

			for _, r := range sc.Steps() {
				writeTextStep(&b, st, r, "      ")
			}
			if cleanups := sc.Cleanups(); len(cleanups) > 0 {
				fmt.Fprintln(&b, st.muted.Render("    Cleanup:"))
				for _, r := range cleanups {
					writeTextStep(&b, st, r, "      ")
				}
			}
		}
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, st.summary.Render(Summarize(scs).String()))

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTextStep(b *strings.Builder, st textStyles, r api.StepResult, indent string) {
	style, mark := st.forStep(r)
	line := fmt.Sprintf("%s%s %s %s", indent, mark, r.Kind, r.Title)
	switch {
	case r.Skipped():
		fmt.Fprintln(b, style.Render(line+" (skipped)"))
	case r.Passed():
		fmt.Fprintln(b, style.Render(line)+" "+st.muted.Render(formatDuration(r.Elapsed)))
	default:
		fmt.Fprintln(b, style.Render(line))
		fmt.Fprintln(b, style.Render(indent+"    "+r.Err.Error()))
	}
}
