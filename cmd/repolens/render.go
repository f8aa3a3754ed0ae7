package main

import (
	"fmt"
	"io"
	"os"

	"github.com/julianshen/repolens/internal/output"
	"github.com/julianshen/repolens/internal/tui"
)

// render writes report in format. Markdown sent to a terminal is styled
// with glamour and framed by a status notice and footer.
func render(w io.Writer, report *output.Report, format string) error {
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}

	f, isFile := w.(*os.File)
	md, isMarkdown := formatter.(*output.MarkdownFormatter)
	if isFile && isMarkdown {
		if isTTY, width := tui.Terminal(f); isTTY {
			md.OmitFooter = true
			return renderTerminal(w, report, md, width)
		}
	}

	out, err := formatter.Format(report)
	if err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func renderTerminal(w io.Writer, report *output.Report, md *output.MarkdownFormatter, width int) error {
	body, err := md.Format(report)
	if err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	renderer, err := tui.NewMarkdownRenderer("dark", width)
	if err != nil {
		return err
	}
	styled, err := renderer.Render(string(body))
	if err != nil {
		styled = string(body)
	}

	var status, reason, model string
	var attempts int
	var cached bool
	switch {
	case report.Diagram != nil:
		d := report.Diagram
		status, reason, model, attempts, cached = string(d.Status), string(d.Reason), d.Model, d.Attempts, d.Cached
	case report.Result != nil:
		r := report.Result
		status, reason, model, attempts, cached = string(r.Status), string(r.Reason), r.Model, r.Attempts, r.Cached
	}

	if notice := tui.Notice(status, reason, width); notice != "" {
		fmt.Fprintln(w, notice)
	}
	fmt.Fprint(w, styled)
	if footer := tui.Footer(model, attempts, cached); footer != "" {
		fmt.Fprintln(w, footer)
	}
	return nil
}
