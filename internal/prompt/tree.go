package prompt

import (
	"fmt"
	"strings"

	"github.com/julianshen/repolens/internal/repo"
)

// Outline renders a tree as an indented listing, maxDepth levels below the
// root and at most maxSiblings entries per directory. Ignored directories
// are left out.
func Outline(root *repo.Node, maxDepth, maxSiblings int) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(root.Name + "/\n")
	writeChildren(&b, root, 1, maxDepth, maxSiblings)
	return b.String()
}

func writeChildren(b *strings.Builder, dir *repo.Node, depth, maxDepth, maxSiblings int) {
	if depth > maxDepth {
		return
	}
	indent := strings.Repeat("  ", depth)
	shown := 0
	kept := 0
	for _, c := range dir.Children {
		if c == nil || (c.IsDir() && repo.IsIgnoredDir(c.Name)) {
			continue
		}
		kept++
		if maxSiblings > 0 && shown >= maxSiblings {
			continue
		}
		shown++
		if c.IsDir() {
			b.WriteString(indent + c.Name + "/\n")
			writeChildren(b, c, depth+1, maxDepth, maxSiblings)
		} else {
			b.WriteString(indent + c.Name + "\n")
		}
	}
	if kept > shown {
		fmt.Fprintf(b, "%s+%d more\n", indent, kept-shown)
	}
}
