package analysis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Function is a named function, method or function-valued binding.
type Function struct {
	Name      string `json:"name"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// grammar holds the tree-sitter language and the node types that
// introduce a named function for one file extension.
type grammar struct {
	lang      *sitter.Language
	funcTypes map[string]bool
}

var jsFuncTypes = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"method_definition":              true,
	"variable_declarator":            true,
}

var grammars = map[string]grammar{
	".go":  {lang: golang.GetLanguage(), funcTypes: map[string]bool{"function_declaration": true, "method_declaration": true}},
	".py":  {lang: python.GetLanguage(), funcTypes: map[string]bool{"function_definition": true}},
	".js":  {lang: javascript.GetLanguage(), funcTypes: jsFuncTypes},
	".jsx": {lang: javascript.GetLanguage(), funcTypes: jsFuncTypes},
	".mjs": {lang: javascript.GetLanguage(), funcTypes: jsFuncTypes},
	".cjs": {lang: javascript.GetLanguage(), funcTypes: jsFuncTypes},
	".ts":  {lang: typescript.GetLanguage(), funcTypes: jsFuncTypes},
	".mts": {lang: typescript.GetLanguage(), funcTypes: jsFuncTypes},
	".cts": {lang: typescript.GetLanguage(), funcTypes: jsFuncTypes},
	".tsx": {lang: tsx.GetLanguage(), funcTypes: jsFuncTypes},
}

// ErrNoGrammar is returned by Outline for extensions without a grammar.
var ErrNoGrammar = errors.New("no grammar for file type")

// Outline parses content and lists its functions in source order.
// Variable declarators only count when bound to an arrow function or a
// function expression.
func Outline(ctx context.Context, fileName string, content []byte) ([]Function, error) {
	ext := strings.ToLower(path.Ext(fileName))
	g, ok := grammars[ext]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoGrammar, ext)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}
	defer tree.Close()

	var funcs []Function
	walk(tree.RootNode(), func(n *sitter.Node) {
		if !g.funcTypes[n.Type()] {
			return
		}
		if n.Type() == "variable_declarator" && !isFunctionValue(n.ChildByFieldName("value")) {
			return
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return
		}
		funcs = append(funcs, Function{
			Name:      name.Content(content),
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
		})
	})
	return funcs, nil
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

// walk visits node and its descendants depth-first.
func walk(node *sitter.Node, fn func(*sitter.Node)) {
	if node == nil {
		return
	}
	fn(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), fn)
	}
}
