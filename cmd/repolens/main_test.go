package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/repolens/internal/config"
	"github.com/julianshen/repolens/internal/diagram"
	"github.com/julianshen/repolens/internal/repo"
)

const archJSON = `{
  "components": [
    {"id": "ui", "name": "UI", "type": "view", "layer": "presentation"},
    {"id": "api", "name": "API client", "type": "service", "layer": "services"}
  ],
  "relationships": [{"from": "ui", "to": "api", "type": "calls"}],
  "layers": ["presentation", "services"]
}`

// geminiServer answers every generateContent call with text, or with
// status when it is not 200.
func geminiServer(t *testing.T, status int, text string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeConfig(t *testing.T, baseURL, cachePath string) string {
	t.Helper()
	content := fmt.Sprintf(`[provider]
default = "gemini"
models = ["test-model"]
base_url = %q

[queue]
min_interval = "0s"

[retry]
attempts = 1
content_attempts = 1
base_delay = "1ms"
max_delay = "1ms"

[cache]
path = %q
`, baseURL, cachePath)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sampleCheckout(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"package.json":         `{"name":"app"}`,
		"src/app.ts":           "import { load } from './api'\nexport function App() { return load() }\n",
		"src/api.ts":           "export const load = () => fetch('/api/items')\n",
		"node_modules/x/ix.js": "module.exports = 1\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, localDir = "", false, ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionString(t *testing.T) {
	s := versionString()
	assert.Contains(t, s, "repolens")
	assert.Contains(t, s, version)
	assert.Contains(t, s, commit)
	assert.Contains(t, s, date)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "repolens dev")
}

func TestFlagDefaults(t *testing.T) {
	root := newRootCmd()
	for name, want := range map[string]string{"diagram": "mermaid", "explain": "markdown", "ask": "markdown"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, want, cmd.Flags().Lookup("format").DefValue, name)
	}
	assert.Equal(t, "false", root.PersistentFlags().Lookup("verbose").DefValue)
}

func TestDiagramLocal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	srv, calls := geminiServer(t, http.StatusOK, "```json\n"+archJSON+"\n```")
	cfg := writeConfig(t, srv.URL, "memory")

	out, err := runCLI(t, "--config", cfg, "--local", sampleCheckout(t), "diagram")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TB\n")
	assert.Contains(t, out, `ui["UI"]`)
	assert.Contains(t, out, "ui --> api")
	assert.NotContains(t, out, diagram.OfflineMarker)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestDiagramFallsBackWhenServiceFails(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	srv, calls := geminiServer(t, http.StatusServiceUnavailable, "")
	cfg := writeConfig(t, srv.URL, "memory")

	out, err := runCLI(t, "--config", cfg, "--local", sampleCheckout(t), "diagram", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, diagram.OfflineMarker)
	assert.Contains(t, out, "directory structure only (service_unavailable)")
	assert.Contains(t, out, `"src/"`)
	assert.NotContains(t, out, "node_modules")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestExplainLocalFileAsJSON(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	srv, _ := geminiServer(t, http.StatusOK, "The API client.\n\n```ts\nload()\n```")
	cfg := writeConfig(t, srv.URL, "memory")

	out, err := runCLI(t, "--config", cfg, "--local", sampleCheckout(t), "explain", "src/api.ts", "--format", "json")
	require.NoError(t, err)

	var report struct {
		Command string `json:"command"`
		Target  string `json:"target"`
		Result  struct {
			Status   string `json:"status"`
			Text     string `json:"text"`
			Model    string `json:"model"`
			Snippets []struct {
				Language string `json:"language"`
			} `json:"snippets"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "explain", report.Command)
	assert.Equal(t, "src/api.ts", report.Target)
	assert.Equal(t, "success", report.Result.Status)
	assert.Equal(t, "test-model", report.Result.Model)
	require.Len(t, report.Result.Snippets, 1)
	assert.Equal(t, "ts", report.Result.Snippets[0].Language)
}

func TestExplainRejectsMissingPath(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	srv, calls := geminiServer(t, http.StatusOK, "unused")
	cfg := writeConfig(t, srv.URL, "memory")

	_, err := runCLI(t, "--config", cfg, "--local", sampleCheckout(t), "explain", "src/missing.ts")
	require.Error(t, err)
	assert.Equal(t, repo.NotFound, repo.FetchKind(err))
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestRepositoryArgumentRequired(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "memory")
	_, err := runCLI(t, "--config", cfg, "diagram")
	assert.ErrorIs(t, err, repo.ErrInvalidReference)

	_, err = runCLI(t, "--config", cfg, "diagram", "not a repo")
	assert.ErrorIs(t, err, repo.ErrInvalidReference)
}

func TestMissingAPIKeySurfacesImmediately(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := writeConfig(t, "http://127.0.0.1:1", "memory")
	_, err := runCLI(t, "--config", cfg, "--local", t.TempDir(), "diagram")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}

func TestCachePurgeAndClear(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "nested", "cache.db")
	cfg := writeConfig(t, "http://127.0.0.1:1", cachePath)

	out, err := runCLI(t, "--config", cfg, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 expired entries.")
	assert.FileExists(t, cachePath)

	out, err = runCLI(t, "--config", cfg, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 entries.")

	memCfg := writeConfig(t, "http://127.0.0.1:1", "memory")
	out, err = runCLI(t, "--config", memCfg, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to clear")
}
