package output

import (
	"fmt"
	"time"

	"github.com/julianshen/repolens/internal/orchestrator"
)

// Report is the outcome of one CLI command.
type Report struct {
	Command string `json:"command" yaml:"command"`
	Repo    string `json:"repo" yaml:"repo"`
	// Target is the explained path or the question asked.
	Target     string                      `json:"target,omitempty" yaml:"target,omitempty"`
	Result     *orchestrator.Result        `json:"result,omitempty" yaml:"result,omitempty"`
	Diagram    *orchestrator.DiagramResult `json:"diagram,omitempty" yaml:"diagram,omitempty"`
	Duration   time.Duration               `json:"-" yaml:"-"`
	DurationMs int64                       `json:"duration_ms" yaml:"duration_ms"`
}

// Formatter formats a Report into output bytes.
type Formatter interface {
	Format(report *Report) ([]byte, error)
}

// Formats lists the accepted format names.
var Formats = []string{"markdown", "mermaid", "json", "yaml"}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string) (Formatter, error) {
	switch name {
	case "", "markdown", "md":
		return NewMarkdownFormatter(), nil
	case "mermaid":
		return NewMermaidFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	case "yaml", "yml":
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %v)", name, Formats)
	}
}

func (r *Report) stamp() {
	if r.Duration > 0 {
		r.DurationMs = r.Duration.Milliseconds()
	}
}
