package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/julianshen/repolens/internal/arch"
	"github.com/julianshen/repolens/internal/orchestrator"
	"github.com/julianshen/repolens/internal/response"
)

func diagramReport() *Report {
	return &Report{
		Command: "diagram",
		Repo:    "octo/app",
		Diagram: &orchestrator.DiagramResult{
			Status: orchestrator.StatusSuccess,
			Markup: "graph TB\n  ui[\"UI\"]\n",
			Data: &arch.Data{Components: []arch.Component{
				{ID: "ui", Name: "UI", Kind: "view", Layer: "presentation", Responsibilities: []string{"render", "route | link"}},
			}},
			Model:    "gemini-2.5-flash",
			Attempts: 1,
		},
		Duration: 1500 * time.Millisecond,
	}
}

func TestNewFormatter(t *testing.T) {
	for _, name := range append(Formats, "", "md", "yml") {
		f, err := NewFormatter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}
	_, err := NewFormatter("svg")
	assert.ErrorContains(t, err, `unknown output format "svg"`)
}

func TestMarkdownDiagram(t *testing.T) {
	out, err := NewMarkdownFormatter().Format(diagramReport())
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "## Architecture of octo/app\n")
	assert.Contains(t, s, "```mermaid\ngraph TB\n  ui[\"UI\"]\n```\n")
	assert.Contains(t, s, "| UI | view | presentation | render; route \\| link |")
	assert.Contains(t, s, "*gemini-2.5-flash, 1 attempt*")
	assert.NotContains(t, s, "directory structure only")
}

func TestMarkdownFallbackDiagram(t *testing.T) {
	r := diagramReport()
	r.Diagram.Status = orchestrator.StatusFallback
	r.Diagram.Reason = orchestrator.ReasonRateLimited
	r.Diagram.Data = nil
	r.Diagram.Model = ""
	out, err := NewMarkdownFormatter().Format(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "> Showing the directory structure only (rate_limited).")
	assert.NotContains(t, string(out), "| Component |")
	assert.NotContains(t, string(out), "---\n*")
}

func TestMarkdownText(t *testing.T) {
	r := &Report{Command: "explain", Repo: "octo/app", Result: &orchestrator.Result{
		Status: orchestrator.StatusSuccess, Text: "It serves HTTP.\n\n", Model: "m", Attempts: 3,
	}}
	out, err := NewMarkdownFormatter().Format(r)
	require.NoError(t, err)
	assert.Equal(t, "It serves HTTP.\n\n---\n*m, 3 attempts*\n", string(out))

	r.Result.Cached = true
	out, err = NewMarkdownFormatter().Format(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "*From cache (m)*")
}

func TestJSONFormatter(t *testing.T) {
	out, err := NewJSONFormatter().Format(diagramReport())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, float64(1500), decoded["duration_ms"])
	d := decoded["diagram"].(map[string]any)
	assert.Equal(t, "success", d["status"])
	components := d["architecture"].(map[string]any)["components"].([]any)
	assert.Equal(t, "view", components[0].(map[string]any)["type"])
}

func TestYAMLFormatter(t *testing.T) {
	r := &Report{Command: "ask", Repo: "octo/app", Target: "How?", Result: &orchestrator.Result{
		Status:   orchestrator.StatusSuccess,
		Text:     "Like this.",
		Snippets: []response.Snippet{{Language: "go", Code: "x := 1"}},
	}}
	out, err := NewYAMLFormatter().Format(r)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "command: ask\n"))

	var decoded struct {
		Target string `yaml:"target"`
		Result struct {
			Snippets []response.Snippet `yaml:"snippets"`
		} `yaml:"result"`
	}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "How?", decoded.Target)
	assert.Equal(t, "x := 1", decoded.Result.Snippets[0].Code)
}

func TestMermaidFormatter(t *testing.T) {
	out, err := NewMermaidFormatter().Format(diagramReport())
	require.NoError(t, err)
	assert.Equal(t, "graph TB\n  ui[\"UI\"]\n", string(out))
}
