package diagram

import (
	"fmt"
	"strings"

	"github.com/julianshen/repolens/internal/repo"
)

// Fallback tree walk limits.
const (
	FallbackDepth    = 2
	FallbackMaxNodes = 30
)

// OfflineMarker labels every fallback diagram.
const OfflineMarker = "Offline mode: generated from the directory structure"

// importantFiles are root files shown in a fallback diagram.
var importantFiles = map[string]bool{
	"package.json":       true,
	"readme.md":          true,
	"dockerfile":         true,
	"docker-compose.yml": true,
	"makefile":           true,
	"go.mod":             true,
	"cargo.toml":         true,
	"pyproject.toml":     true,
	"requirements.txt":   true,
	"pom.xml":            true,
	"build.gradle":       true,
}

// FromTree renders a diagram of root's directories without any
// inference, walking breadth-first to FallbackDepth and stopping after
// FallbackMaxNodes nodes.
func FromTree(root *repo.Node) string {
	return fromTree(root, FallbackDepth, FallbackMaxNodes)
}

func fromTree(root *repo.Node, maxDepth, maxNodes int) string {
	var b strings.Builder
	b.WriteString("graph TB\n")
	fmt.Fprintf(&b, "  offline[\"%s\"]:::offline\n", OfflineMarker)

	name := "repository"
	if root != nil && root.Name != "" {
		name = root.Name
	}
	fmt.Fprintf(&b, "  root[\"%s\"]\n", escapeLabel(name))

	type item struct {
		node  *repo.Node
		id    string
		depth int
	}
	queue := []item{{node: root, id: "root"}}
	count := 0
walk:
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.node == nil || cur.depth >= maxDepth {
			continue
		}
		for _, c := range cur.node.Children {
			if !include(c, cur.depth) {
				continue
			}
			if count >= maxNodes {
				break walk
			}
			count++
			id := fmt.Sprintf("n%d", count)
			label := c.Name
			if c.IsDir() {
				label += "/"
			}
			fmt.Fprintf(&b, "  %s[\"%s\"]\n", id, escapeLabel(label))
			fmt.Fprintf(&b, "  %s --> %s\n", cur.id, id)
			if c.IsDir() {
				queue = append(queue, item{node: c, id: id, depth: cur.depth + 1})
			}
		}
	}

	b.WriteString("  classDef offline fill:#fef3c7,stroke:#d97706,stroke-dasharray:4 2,color:#78350f\n")
	return b.String()
}

func include(n *repo.Node, parentDepth int) bool {
	if n == nil {
		return false
	}
	if n.IsDir() {
		return !repo.IsIgnoredDir(n.Name)
	}
	return parentDepth == 0 && importantFiles[strings.ToLower(n.Name)]
}
