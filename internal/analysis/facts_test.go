package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const componentSource = `import React, { useState, useEffect } from 'react';
import {
  Header,
  Footer,
} from "./layout";
import './styles.css';
const lodash = require('lodash');

export const API_BASE = '/api';

export default function App() {
  const [items, setItems] = useState([]);
  const theme = useTheme();
  useEffect(() => {
    fetch('/api/items').then((r) => r.json()).then(setItems);
    axios.post("https://example.com/track", {});
  }, []);
  const again = useState(0);
  return null;
}

export { Header as TopBar, Footer };
`

func TestAnalyzeComponent(t *testing.T) {
	facts := Analyze("src/App.jsx", componentSource)

	assert.Equal(t, "src/App.jsx", facts.File)
	assert.Equal(t, []string{"react", "./layout", "./styles.css", "lodash"}, facts.Imports)
	assert.Equal(t, []string{"API_BASE", "App", "TopBar", "Footer"}, facts.Exports)
	assert.Equal(t, []string{"useState", "useTheme", "useEffect"}, facts.Hooks)

	require.Len(t, facts.NetworkCalls, 2)
	assert.Equal(t, NetworkCall{Client: "fetch", Target: "/api/items", Line: 15}, facts.NetworkCalls[0])
	assert.Equal(t, "axios.post", facts.NetworkCalls[1].Client)
	assert.Equal(t, "https://example.com/track", facts.NetworkCalls[1].Target)
}

func TestAnalyzeNeverDuplicatesHooks(t *testing.T) {
	inputs := []string{
		"",
		"useFoo(); useFoo(); useBar(); useFoo();",
		"function broken( { useX( useX( useY<string>(",
		strings.Repeat("useLoop();\n", 50),
		"user(); useless(); use(); usable()",
	}

	for _, in := range inputs {
		facts := Analyze("x.ts", in)
		seen := map[string]bool{}
		for _, h := range facts.Hooks {
			assert.False(t, seen[h], "duplicate hook %q for input %q", h, in)
			seen[h] = true
		}
	}

	assert.Equal(t, []string{"useX", "useY"}, Analyze("x.ts", inputs[2]).Hooks)
	assert.Empty(t, Analyze("x.ts", inputs[4]).Hooks, "lower-case continuation is not a hook")
}

func TestAnalyzeEmptyContent(t *testing.T) {
	facts := Analyze("empty.ts", "")
	assert.True(t, facts.Empty())
	assert.NotNil(t, facts.Imports)
	assert.NotNil(t, facts.Exports)
	assert.NotNil(t, facts.Hooks)
	assert.NotNil(t, facts.NetworkCalls)
}

func TestAnalyzeTypeScriptExports(t *testing.T) {
	src := `export interface User { id: string }
export type Role = 'admin' | 'user';
export enum Status { Active }
export async function loadUser(id: string) {}
export abstract class Repo {}
export * from './models';
`
	facts := Analyze("types.ts", src)
	assert.Equal(t, []string{"User", "Role", "Status", "loadUser", "Repo"}, facts.Exports)
	assert.Equal(t, []string{"./models"}, facts.Imports)
}

func TestAnalyzeGo(t *testing.T) {
	src := `package server

import "context"

import (
	"net/http"
	log "log/slog"
)

type Server struct{}

func (s *Server) Start(ctx context.Context) error { return nil }

func helper() {}

func New() *Server {
	http.Get("http://localhost:8080/health")
	return &Server{}
}
`
	facts := Analyze("server.go", src)
	assert.Equal(t, []string{"context", "net/http", "log/slog"}, facts.Imports)
	assert.Equal(t, []string{"Server", "Start", "New"}, facts.Exports)
	require.Len(t, facts.NetworkCalls, 1)
	assert.Equal(t, "http://localhost:8080/health", facts.NetworkCalls[0].Target)
}

func TestAnalyzePython(t *testing.T) {
	src := `from flask import Flask
import requests

def public():
    return requests.get('https://api.example.com/v1')

def _private():
    pass

class Service:
    pass
`
	facts := Analyze("app.py", src)
	assert.Equal(t, []string{"flask", "requests"}, facts.Imports)
	assert.Equal(t, []string{"public", "Service"}, facts.Exports)
	require.Len(t, facts.NetworkCalls, 1)
	assert.Equal(t, "requests.get", facts.NetworkCalls[0].Client)
}

func TestAnalyzeCodebaseFiltersAndKeepsOrder(t *testing.T) {
	files := []SourceFile{
		{Path: "README.md", Content: "import x from 'y'"},
		{Path: "src/b.ts", Content: "import a from './a'"},
		{Path: "src/types.d.ts", Content: "export type X = 1"},
		{Path: "src/a.tsx", Content: "export const A = 1"},
		{Path: "package.json", Content: "{}"},
	}

	facts := AnalyzeCodebase(files)
	require.Len(t, facts.Files, 2)
	assert.Equal(t, "src/b.ts", facts.Files[0].File)
	assert.Equal(t, "src/a.tsx", facts.Files[1].File)
}

func TestIsSource(t *testing.T) {
	assert.True(t, IsSource("a/b/C.TSX"))
	assert.True(t, IsSource("main.go"))
	assert.False(t, IsSource("index.d.ts"))
	assert.False(t, IsSource("Dockerfile"))
	assert.False(t, IsSource("styles.css"))
}
