// Package diagram renders Mermaid flowcharts, either from extracted
// architecture data or, without any inference, from a directory tree.
package diagram

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/julianshen/repolens/internal/arch"
)

// Style is appended to every architecture diagram.
const Style = `  classDef default fill:#f8fafc,stroke:#475569,stroke-width:1px,color:#0f172a
  classDef layer fill:#eef2ff,stroke:#6366f1,color:#312e81`

// Synthesize renders d as a top-to-bottom Mermaid graph with one
// subgraph per layer. Edges whose endpoints were not emitted as nodes
// are skipped.
func Synthesize(d *arch.Data) string {
	var b strings.Builder
	b.WriteString("graph TB\n")
	if d == nil {
		b.WriteString(Style + "\n")
		return b.String()
	}

	byLayer := make(map[string][]arch.Component)
	for _, c := range d.Components {
		byLayer[c.Layer] = append(byLayer[c.Layer], c)
	}

	emitted := make(map[string]bool, len(d.Components))
	var layerIDs []string
	for _, layer := range d.LayerOrder() {
		components := byLayer[layer]
		if len(components) == 0 {
			continue
		}
		indent := "  "
		if layer != "" {
			id := "layer_" + sanitizeID(layer)
			layerIDs = append(layerIDs, id)
			fmt.Fprintf(&b, "  subgraph %s[\"%s\"]\n", id, escapeLabel(title(layer)))
			indent = "    "
		}
		for _, c := range components {
			id := sanitizeID(c.ID)
			emitted[id] = true
			fmt.Fprintf(&b, "%s%s[\"%s\"]\n", indent, id, escapeLabel(c.Name))
		}
		if layer != "" {
			b.WriteString("  end\n")
		}
	}

	for _, r := range d.Relationships {
		from, to := sanitizeID(r.From), sanitizeID(r.To)
		if !emitted[from] || !emitted[to] {
			continue
		}
		arrow := "-->"
		if r.Kind == arch.RelImports || r.Kind == arch.RelUses {
			arrow = "-.->"
		}
		if desc := strings.TrimSpace(r.Description); desc != "" {
			fmt.Fprintf(&b, "  %s %s|\"%s\"| %s\n", from, arrow, escapeLabel(desc), to)
		} else {
			fmt.Fprintf(&b, "  %s %s %s\n", from, arrow, to)
		}
	}

	b.WriteString(Style + "\n")
	if len(layerIDs) > 0 {
		fmt.Fprintf(&b, "  class %s layer\n", strings.Join(layerIDs, ","))
	}
	return b.String()
}

// sanitizeID maps s onto the identifier characters Mermaid accepts.
// Distinct inputs may collide.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := b.String()
	switch strings.ToLower(id) {
	case "":
		return "node"
	case "end", "graph", "subgraph", "class", "style":
		// Mermaid keywords cannot be node ids.
		return id + "_"
	}
	return id
}

// escapeLabel makes s safe inside a quoted Mermaid label.
func escapeLabel(s string) string {
	r := strings.NewReplacer(
		`"`, "#quot;",
		"|", "#124;",
		"\r\n", " ",
		"\n", " ",
	)
	return r.Replace(s)
}

func title(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
