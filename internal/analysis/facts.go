// Package analysis performs lightweight static analysis of source files.
// Facts are extracted line by line with regular expressions so that files
// with syntax errors, or in languages without a grammar, still yield
// whatever can be recognised. The function outline in outline.go uses
// tree-sitter where a grammar is available.
package analysis

import (
	"path"
	"regexp"
	"strings"
)

// NetworkCall is an outbound call to a well-known network primitive with
// a string literal target.
type NetworkCall struct {
	Client string `json:"client"`
	Target string `json:"target"`
	Line   int    `json:"line"`
}

// FileFacts is the fact sheet of a single file.
type FileFacts struct {
	File         string        `json:"file"`
	Imports      []string      `json:"imports"`
	Exports      []string      `json:"exports"`
	Hooks        []string      `json:"hooks"`
	NetworkCalls []NetworkCall `json:"apiCalls"`
}

// Empty reports whether no fact was found.
func (f FileFacts) Empty() bool {
	return len(f.Imports) == 0 && len(f.Exports) == 0 && len(f.Hooks) == 0 && len(f.NetworkCalls) == 0
}

// CodebaseFacts aggregates the fact sheets of a repository.
type CodebaseFacts struct {
	Files []FileFacts `json:"files"`
}

// SourceFile is a file path with its text content.
type SourceFile struct {
	Path    string
	Content string
}

// sourceExtensions are the file extensions considered source code.
var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".vue": true, ".svelte": true,
	".py": true, ".go": true,
}

// IsSource reports whether name has a source-code extension.
// Declaration files (.d.ts) are excluded.
func IsSource(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".d.ts") {
		return false
	}
	return sourceExtensions[path.Ext(lower)]
}

var (
	jsImportRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?(?:[\w$*{}\s,]+?\s+from\s+)?['"]([^'"\n]+)['"]`)
	jsReExport  = regexp.MustCompile(`(?m)^\s*export\s+(?:type\s+)?(?:\*|\{[^}]*\})(?:\s+as\s+[\w$]+)?\s+from\s+['"]([^'"\n]+)['"]`)
	requireRe   = regexp.MustCompile(`\brequire\(\s*['"]([^'"\n]+)['"]\s*\)`)
	dynImportRe = regexp.MustCompile(`\bimport\(\s*['"]([^'"\n]+)['"]\s*\)`)
	pyImportRe  = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import\b|import\s+([\w.]+))`)
	goImportRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	goBlockRe   = regexp.MustCompile(`(?s)\bimport\s*\((.*?)\)`)
	goSpecRe    = regexp.MustCompile(`"([^"]+)"`)

	jsExportDeclRe = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(?:function\s*\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)
	jsExportDefRe  = regexp.MustCompile(`(?m)^\s*export\s+default\s+([A-Za-z_$][\w$]*)\s*;?\s*$`)
	jsExportListRe = regexp.MustCompile(`(?m)^\s*export\s+(?:type\s+)?\{([^}]*)\}\s*(?:from\b)?`)
	goExportRe     = regexp.MustCompile(`(?m)^(?:func\s+(?:\([^)]*\)\s*)?|type\s+|var\s+|const\s+)([A-Z]\w*)`)
	pyExportRe     = regexp.MustCompile(`(?m)^(?:async\s+)?(?:def|class)\s+([A-Za-z]\w*)`)

	hookRe = regexp.MustCompile(`\b(use[A-Z][A-Za-z0-9_]*)\s*(?:<[^()]*>)?\s*\(`)

	networkRe = regexp.MustCompile("\\b(fetch|axios(?:\\.(?:get|post|put|patch|delete|head|request))?|\\$http\\.(?:get|post|put|delete)|http\\.(?:get|post|Get|Post|Head)|requests\\.(?:get|post|put|patch|delete))\\s*\\(\\s*(?:'([^'\\n]*)'|\"([^\"\\n]*)\"|`([^`]*)`)")
)

// Analyze extracts the fact sheet of one file. It never fails: a pattern
// that does not occur yields an empty list.
func Analyze(fileName, content string) FileFacts {
	facts := FileFacts{
		File:         fileName,
		Imports:      []string{},
		Exports:      []string{},
		Hooks:        []string{},
		NetworkCalls: []NetworkCall{},
	}
	ext := strings.ToLower(path.Ext(fileName))

	facts.Imports = extractImports(ext, content)
	facts.Exports = extractExports(ext, content)
	facts.Hooks = extractHooks(content)
	facts.NetworkCalls = extractNetworkCalls(content)
	return facts
}

// AnalyzeCodebase analyzes every source file in order, skipping files
// without a source-code extension.
func AnalyzeCodebase(files []SourceFile) CodebaseFacts {
	out := CodebaseFacts{Files: []FileFacts{}}
	for _, f := range files {
		if !IsSource(f.Path) {
			continue
		}
		out.Files = append(out.Files, Analyze(f.Path, f.Content))
	}
	return out
}

func extractImports(ext, content string) []string {
	imports := []string{}
	switch ext {
	case ".py":
		for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
			imports = append(imports, firstNonEmpty(m[1], m[2]))
		}
	case ".go":
		for _, m := range goImportRe.FindAllStringSubmatch(content, -1) {
			imports = append(imports, m[1])
		}
		for _, block := range goBlockRe.FindAllStringSubmatch(content, -1) {
			for _, spec := range goSpecRe.FindAllStringSubmatch(block[1], -1) {
				imports = append(imports, spec[1])
			}
		}
	default:
		imports = appendMatches(imports, content, jsImportRe, jsReExport, requireRe, dynImportRe)
	}
	return imports
}

// appendMatches collects the first capture group of every regexp, ordered
// by position in content so discovery order is preserved across patterns.
func appendMatches(dst []string, content string, res ...*regexp.Regexp) []string {
	type hit struct {
		pos   int
		value string
	}
	var hits []hit
	for _, re := range res {
		for _, idx := range re.FindAllStringSubmatchIndex(content, -1) {
			hits = append(hits, hit{pos: idx[2], value: content[idx[2]:idx[3]]})
		}
	}
	// Insertion sort: hit lists are short and mostly ordered already.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		dst = append(dst, h.value)
	}
	return dst
}

func extractExports(ext, content string) []string {
	exports := []string{}
	switch ext {
	case ".go":
		for _, m := range goExportRe.FindAllStringSubmatch(content, -1) {
			exports = append(exports, m[1])
		}
		return exports
	case ".py":
		for _, m := range pyExportRe.FindAllStringSubmatch(content, -1) {
			if !strings.HasPrefix(m[1], "_") {
				exports = append(exports, m[1])
			}
		}
		return exports
	}

	type hit struct {
		pos   int
		names []string
	}
	var hits []hit
	for _, idx := range jsExportDeclRe.FindAllStringSubmatchIndex(content, -1) {
		hits = append(hits, hit{pos: idx[0], names: []string{content[idx[2]:idx[3]]}})
	}
	for _, idx := range jsExportDefRe.FindAllStringSubmatchIndex(content, -1) {
		hits = append(hits, hit{pos: idx[0], names: []string{content[idx[2]:idx[3]]}})
	}
	for _, idx := range jsExportListRe.FindAllStringSubmatchIndex(content, -1) {
		hits = append(hits, hit{pos: idx[0], names: exportListNames(content[idx[2]:idx[3]])})
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		exports = append(exports, h.names...)
	}
	return exports
}

// exportListNames parses "a, b as c, type D" into [a c D].
func exportListNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "type" && len(fields) > 1 {
			fields = fields[1:]
		}
		// "a as b" exports b.
		names = append(names, fields[len(fields)-1])
	}
	return names
}

func extractHooks(content string) []string {
	hooks := []string{}
	seen := make(map[string]bool)
	for _, m := range hookRe.FindAllStringSubmatch(content, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		hooks = append(hooks, m[1])
	}
	return hooks
}

func extractNetworkCalls(content string) []NetworkCall {
	calls := []NetworkCall{}
	for _, idx := range networkRe.FindAllStringSubmatchIndex(content, -1) {
		var target string
		for g := 2; g <= 4; g++ {
			if idx[2*g] >= 0 {
				target = content[idx[2*g]:idx[2*g+1]]
				break
			}
		}
		calls = append(calls, NetworkCall{
			Client: content[idx[2]:idx[3]],
			Target: target,
			Line:   strings.Count(content[:idx[0]], "\n") + 1,
		})
	}
	return calls
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
