package output

import (
	"fmt"
	"strings"

	"github.com/julianshen/repolens/internal/orchestrator"
)

// MarkdownFormatter outputs a Report as human-readable Markdown.
type MarkdownFormatter struct {
	// OmitFooter drops the model and attempts line.
	OmitFooter bool
}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format renders the Report as Markdown.
func (f *MarkdownFormatter) Format(report *Report) ([]byte, error) {
	var b strings.Builder

	switch {
	case report.Diagram != nil:
		d := report.Diagram
		fmt.Fprintf(&b, "## Architecture of %s\n\n", report.Repo)
		if d.Status == orchestrator.StatusFallback {
			fmt.Fprintf(&b, "> Showing the directory structure only (%s).\n\n", d.Reason)
		}
		b.WriteString("```mermaid\n")
		b.WriteString(strings.TrimRight(d.Markup, "\n"))
		b.WriteString("\n```\n")
		if d.Data != nil && len(d.Data.Components) > 0 {
			b.WriteString("\n| Component | Type | Layer | Responsibilities |\n|---|---|---|---|\n")
			for _, c := range d.Data.Components {
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
					cell(c.Name), cell(c.Kind), cell(c.Layer), cell(strings.Join(c.Responsibilities, "; ")))
			}
		}
		if !f.OmitFooter {
			writeFooter(&b, d.Model, d.Attempts, d.Cached)
		}
	case report.Result != nil:
		r := report.Result
		b.WriteString(strings.TrimRight(r.Text, "\n"))
		b.WriteString("\n")
		if !f.OmitFooter {
			writeFooter(&b, r.Model, r.Attempts, r.Cached)
		}
	}
	return []byte(b.String()), nil
}

func writeFooter(b *strings.Builder, model string, attempts int, cached bool) {
	switch {
	case cached:
		fmt.Fprintf(b, "\n---\n*From cache (%s)*\n", model)
	case model != "":
		label := "attempts"
		if attempts == 1 {
			label = "attempt"
		}
		fmt.Fprintf(b, "\n---\n*%s, %d %s*\n", model, attempts, label)
	}
}

func cell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
