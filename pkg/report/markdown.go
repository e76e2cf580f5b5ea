package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/petrijr/stepflow/pkg/api"
)

// Markdown writes a report as GitHub-flavored Markdown, one table per
// scenario.
type Markdown struct{}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func statusIcon(status string) string {
	switch status {
	case "passed":
		return "✅"
	case "skipped":
		return "⏭️"
	default:
		return "❌"
	}
}

func writeMarkdownTable(b *bytes.Buffer, results []api.StepResult) {
	fmt.Fprintln(b, "| # | Step | Status | Duration | Error |")
	fmt.Fprintln(b, "|---|------|--------|----------|-------|")
	for i, r := range results {
		fmt.Fprintf(b, "| %d | %s %s | %s %s | %s | %s |\n",
			i+1, r.Kind, cell(r.Title), statusIcon(r.Status()), r.Status(),
			formatDuration(r.Elapsed), cell(stepError(r)))
	}
	fmt.Fprintln(b)
}

func (m *Markdown) render(scs []*api.ScenarioContext) []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, "# Scenario report")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "**%s**\n\n", Summarize(scs))

	for _, g := range groupByFeature(scs) {
		fmt.Fprintf(&b, "## %s\n\n", g.name)
		if g.description != "" {
			fmt.Fprintf(&b, "%s\n\n", g.description)
		}
		for _, sc := range g.scenarios {
			status := scenarioStatus(sc)
			fmt.Fprintf(&b, "### %s %s\n\n", statusIcon(status), sc.ScenarioName)
			if sc.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", sc.Description)
			}
			if tags := sc.Tags(); len(tags) > 0 {
				fmt.Fprintf(&b, "Tags: `%s`\n\n", strings.Join(tags, "`, `"))
			}
			writeMarkdownTable(&b, sc.Steps())
			if cleanups := sc.Cleanups(); len(cleanups) > 0 {
				fmt.Fprintln(&b, "Cleanup:")
				fmt.Fprintln(&b)
				writeMarkdownTable(&b, cleanups)
			}
			if err := sc.Err(); err != nil {
				fmt.Fprintf(&b, "> %s\n\n", cell(err.Error()))
			}
		}
	}
	return b.Bytes()
}

func (m *Markdown) Report(w io.Writer, scs []*api.ScenarioContext) error {
	_, err := w.Write(m.render(scs))
	return err
}

// HTML renders the Markdown report to a standalone HTML page with goldmark.
type HTML struct {
	// Title defaults to "Scenario report".
	Title string
}

func (h *HTML) Report(w io.Writer, scs []*api.ScenarioContext) error {
	var body bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert((&Markdown{}).render(scs), &body); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}

	title := h.Title
	if title == "" {
		title = "Scenario report"
	}
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-bottom: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body.String())
	return err
}
