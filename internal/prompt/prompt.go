// Package prompt builds the text prompts sent to the inference endpoint.
// Every builder is deterministic for its inputs and keeps each variable
// section within a per-kind character budget.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/julianshen/repolens/internal/analysis"
	"github.com/julianshen/repolens/internal/arch"
	"github.com/julianshen/repolens/internal/repo"
)

// Budgets are character limits per prompt kind.
type Budgets struct {
	File     int
	Question int
	Diagram  int
	Summary  int
}

// DefaultBudgets returns the stock budgets.
func DefaultBudgets() Budgets {
	return Budgets{File: 60000, Question: 30000, Diagram: 20000, Summary: 40000}
}

// Builder renders prompts.
type Builder struct {
	Budgets       Budgets
	TreeDepth     int
	MaxSiblings   int
	MaxComponents int
	MaxFactFiles  int
}

// New returns a Builder with the given budgets; zero budgets fall back to
// DefaultBudgets.
func New(b Budgets) *Builder {
	d := DefaultBudgets()
	if b.File <= 0 {
		b.File = d.File
	}
	if b.Question <= 0 {
		b.Question = d.Question
	}
	if b.Diagram <= 0 {
		b.Diagram = d.Diagram
	}
	if b.Summary <= 0 {
		b.Summary = d.Summary
	}
	return &Builder{Budgets: b, TreeDepth: 3, MaxSiblings: 25, MaxComponents: 20, MaxFactFiles: 40}
}

const groundingRule = `If any part of the material above is marked as omitted, work with what is shown. Never answer that there is insufficient context; describe what the visible material establishes.`

// ---------- templates ----------

var repositoryTmpl = template.Must(template.New("repository").Parse(
	`You are explaining the source code repository "{{.Repo}}" to a developer who is new to it.

Directory structure:
{{.Outline}}
{{if .Readme}}
README:
{{.Readme}}
{{end}}
Write a concise Markdown overview covering: the purpose of the project, the main technologies, how the code is organized, and where a newcomer should start reading.

{{.Rule}}`))

var directoryTmpl = template.Must(template.New("directory").Parse(
	`In the repository "{{.Repo}}", explain the role of the directory "{{.Path}}".

Contents:
{{.Listing}}
Write a short Markdown summary of what this directory contains, how its parts relate, and how it fits in the repository.

{{.Rule}}`))

var fileTmpl = template.Must(template.New("file").Parse(
	`Explain the file "{{.Path}}" from the repository "{{.Repo}}".
{{if .Functions}}
Definitions found in the file:
{{.Functions}}{{end}}
Source:
` + "```" + `{{.Lang}}
{{.Content}}
` + "```" + `

Write a Markdown explanation: what the file is for, its key types and functions, and how it interacts with the rest of the codebase. Quote short code snippets in fenced blocks where they help.

{{.Rule}}`))

var functionsTmpl = template.Must(template.New("functions").Parse(
	`Summarize each function in "{{.Path}}" from the repository "{{.Repo}}".
{{if .Functions}}
Functions to cover, in order:
{{.Functions}}{{else}}
Identify the functions and methods defined in the file yourself.
{{end}}
Source:
` + "```" + `{{.Lang}}
{{.Content}}
` + "```" + `

Answer with one Markdown bullet per function, in source order, formatted as:
- ` + "`name`" + `: one or two sentences on what it does and what it returns.

{{.Rule}}`))

var questionTmpl = template.Must(template.New("question").Parse(
	`Answer a question about the repository "{{.Repo}}" using the material below.

Directory structure:
{{.Outline}}
{{if .Files}}
Relevant files:
{{.Files}}{{end}}
Question: {{.Question}}

Answer in Markdown. Reference file paths when you rely on them and put code in fenced blocks.

{{.Rule}}`))

var architectureTmpl = template.Must(template.New("architecture").Parse(
	`Extract the software architecture of the repository "{{.Repo}}" from the static analysis below.

Directory structure:
{{.Outline}}
Per-file facts (one JSON object per line: file, imports, exports, hooks, apiCalls):
{{.Facts}}
Respond with a single JSON object and nothing else, using exactly this schema:
{
  "components": [
    {"id": "kebab-case-id", "name": "Display Name", "type": "{{.Kinds}}", "layer": "{{.Layers}}", "responsibilities": ["short phrase"]}
  ],
  "relationships": [
    {"from": "component-id", "to": "component-id", "type": "{{.RelKinds}}", "description": "optional short label"}
  ],
  "layers": ["ordered list of the layers used, outermost first"]
}

Rules:
- At most {{.MaxComponents}} components. Merge small related files into one component.
- Ground every component in a file, directory or fact shown above. Do not invent databases, queues, caches or services that the analysis does not show.
- Every relationship must reference ids defined in "components".
- Use "imports" for static module imports and "calls" for runtime calls such as network requests.

{{.Rule}}`))

// ---------- inputs ----------

// RepositoryInput feeds Repository.
type RepositoryInput struct {
	Repo   string
	Tree   *repo.Node
	Readme string
}

// DirectoryInput feeds Directory.
type DirectoryInput struct {
	Repo string
	Dir  *repo.Node
}

// FileInput feeds File and Functions.
type FileInput struct {
	Repo      string
	Path      string
	Content   string
	Functions []analysis.Function
}

// QuestionInput feeds Question.
type QuestionInput struct {
	Repo     string
	Question string
	Tree     *repo.Node
	Files    []analysis.SourceFile
}

// ArchitectureInput feeds Architecture.
type ArchitectureInput struct {
	Repo  string
	Tree  *repo.Node
	Facts analysis.CodebaseFacts
}

// ---------- builders ----------

// Repository builds the repository overview prompt.
func (b *Builder) Repository(in RepositoryInput) string {
	outline, _ := Truncate(Outline(in.Tree, b.TreeDepth, b.MaxSiblings), b.Budgets.Summary/2)
	readme := fit(strings.TrimSpace(in.Readme), remaining(b.Budgets.Summary, outline))
	return render(repositoryTmpl, map[string]any{
		"Repo": in.Repo, "Outline": outline, "Readme": readme, "Rule": groundingRule,
	})
}

// Directory builds the directory summary prompt.
func (b *Builder) Directory(in DirectoryInput) string {
	var listing strings.Builder
	path := "/"
	if in.Dir != nil {
		if in.Dir.Path != "" {
			path = in.Dir.Path
		}
		for _, c := range in.Dir.Children {
			switch {
			case c == nil, c.IsDir() && repo.IsIgnoredDir(c.Name):
				continue
			case c.IsDir():
				fmt.Fprintf(&listing, "- %s/ (%d entries)\n", c.Name, len(c.Children))
			case c.Size > 0:
				fmt.Fprintf(&listing, "- %s (%d bytes)\n", c.Name, c.Size)
			default:
				fmt.Fprintf(&listing, "- %s\n", c.Name)
			}
		}
	}
	if listing.Len() == 0 {
		listing.WriteString("(empty)\n")
	}
	text, _ := Truncate(listing.String(), b.Budgets.Summary)
	return render(directoryTmpl, map[string]any{
		"Repo": in.Repo, "Path": path, "Listing": text, "Rule": groundingRule,
	})
}

// File builds the single-file explanation prompt.
func (b *Builder) File(in FileInput) string {
	return render(fileTmpl, b.fileData(in))
}

// Functions builds the per-function summary prompt.
func (b *Builder) Functions(in FileInput) string {
	return render(functionsTmpl, b.fileData(in))
}

func (b *Builder) fileData(in FileInput) map[string]any {
	content, _ := Truncate(in.Content, b.Budgets.File)
	var funcs strings.Builder
	for _, f := range in.Functions {
		fmt.Fprintf(&funcs, "- %s (lines %d-%d)\n", f.Name, f.StartLine, f.EndLine)
	}
	return map[string]any{
		"Repo": in.Repo, "Path": in.Path, "Content": content,
		"Functions": funcs.String(), "Lang": fenceLanguage(in.Path), "Rule": groundingRule,
	}
}

// Question builds the question-answering prompt. The tree outline and the
// file excerpts share the question budget.
func (b *Builder) Question(in QuestionInput) string {
	outline, _ := Truncate(Outline(in.Tree, b.TreeDepth, b.MaxSiblings), b.Budgets.Question/4)
	var files strings.Builder
	for _, f := range in.Files {
		fmt.Fprintf(&files, "=== %s ===\n%s\n", f.Path, f.Content)
	}
	excerpt := fit(files.String(), remaining(b.Budgets.Question, outline))
	return render(questionTmpl, map[string]any{
		"Repo": in.Repo, "Question": strings.TrimSpace(in.Question),
		"Outline": outline, "Files": excerpt, "Rule": groundingRule,
	})
}

// Architecture builds the structured extraction prompt.
func (b *Builder) Architecture(in ArchitectureInput) string {
	outline, _ := Truncate(Outline(in.Tree, b.TreeDepth, b.MaxSiblings), b.Budgets.Diagram/3)
	facts := summarizeFacts(in.Facts, remaining(b.Budgets.Diagram, outline), b.MaxFactFiles)
	return render(architectureTmpl, map[string]any{
		"Repo":          in.Repo,
		"Outline":       outline,
		"Facts":         facts,
		"Kinds":         strings.Join(arch.ComponentKinds, "|"),
		"Layers":        strings.Join(arch.DefaultLayers, "|"),
		"RelKinds":      strings.Join(arch.RelationshipKinds, "|"),
		"MaxComponents": b.MaxComponents,
		"Rule":          groundingRule,
	})
}

func render(t *template.Template, data any) string {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		// Templates are fixed and fed plain strings; failure is a bug.
		panic(fmt.Sprintf("prompt %s: %v", t.Name(), err))
	}
	return sb.String()
}

var fenceLanguages = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "jsx",
	".mjs": "javascript", ".cjs": "javascript", ".ts": "typescript",
	".tsx": "tsx", ".vue": "vue", ".svelte": "svelte", ".rs": "rust",
	".java": "java", ".rb": "ruby", ".md": "markdown", ".json": "json",
	".yaml": "yaml", ".yml": "yaml",
}

func fenceLanguage(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return fenceLanguages[strings.ToLower(path[i:])]
	}
	return ""
}
