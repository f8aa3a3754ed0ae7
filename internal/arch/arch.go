// Package arch defines the architecture model extracted from a repository:
// components grouped into layers and the relationships between them.
package arch

import "strings"

// Component kinds.
const (
	KindService    = "service"
	KindController = "controller"
	KindModel      = "model"
	KindView       = "view"
	KindUtility    = "utility"
	KindComponent  = "component"
	KindContext    = "context"
	KindHook       = "hook"
)

// Layers, outermost first.
const (
	LayerPresentation   = "presentation"
	LayerState          = "state"
	LayerServices       = "services"
	LayerData           = "data"
	LayerInfrastructure = "infrastructure"
	LayerExternal       = "external"
)

// Relationship kinds.
const (
	RelCalls     = "calls"
	RelDependsOn = "depends_on"
	RelImports   = "imports"
	RelInherits  = "inherits"
	RelUses      = "uses"
	RelProvides  = "provides"
)

// ComponentKinds lists every accepted component kind.
var ComponentKinds = []string{
	KindService, KindController, KindModel, KindView,
	KindUtility, KindComponent, KindContext, KindHook,
}

// DefaultLayers is the canonical layer ordering.
var DefaultLayers = []string{
	LayerPresentation, LayerState, LayerServices,
	LayerData, LayerInfrastructure, LayerExternal,
}

// RelationshipKinds lists every accepted relationship kind.
var RelationshipKinds = []string{
	RelCalls, RelDependsOn, RelImports, RelInherits, RelUses, RelProvides,
}

// Component is a single architectural building block.
type Component struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Kind             string   `json:"type" yaml:"type"`
	Layer            string   `json:"layer" yaml:"layer"`
	Responsibilities []string `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
}

// Relationship is a directed edge between two components.
type Relationship struct {
	From        string `json:"from" yaml:"from"`
	To          string `json:"to" yaml:"to"`
	Kind        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Data is the structured architecture of one repository.
type Data struct {
	Components    []Component    `json:"components" yaml:"components"`
	Relationships []Relationship `json:"relationships" yaml:"relationships"`
	Layers        []string       `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// Normalize repairs a decoded Data in place and returns it. Components
// without an id and components repeating an earlier id are removed,
// layer names and kinds are lower-cased, and relationships whose
// endpoints do not both reference a surviving component are dropped.
// Dropped is the number of relationships removed.
func (d *Data) Normalize() (dropped int) {
	ids := make(map[string]bool, len(d.Components))
	components := d.Components[:0]
	for _, c := range d.Components {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || ids[c.ID] {
			continue
		}
		ids[c.ID] = true
		c.Layer = strings.ToLower(strings.TrimSpace(c.Layer))
		c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
		if strings.TrimSpace(c.Name) == "" {
			c.Name = c.ID
		}
		components = append(components, c)
	}
	d.Components = components

	relationships := d.Relationships[:0]
	for _, r := range d.Relationships {
		r.From = strings.TrimSpace(r.From)
		r.To = strings.TrimSpace(r.To)
		if !ids[r.From] || !ids[r.To] {
			dropped++
			continue
		}
		r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
		relationships = append(relationships, r)
	}
	d.Relationships = relationships

	layers := d.Layers[:0]
	seen := make(map[string]bool, len(d.Layers))
	for _, l := range d.Layers {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		layers = append(layers, l)
	}
	d.Layers = layers
	return dropped
}

// LayerOrder returns the layers to render in order: the explicit Layers
// list when present, otherwise the distinct component layers in order of
// first appearance. Component layers missing from an explicit list are
// appended so that no component is left ungrouped.
func (d *Data) LayerOrder() []string {
	seen := make(map[string]bool)
	var order []string
	for _, l := range d.Layers {
		if !seen[l] {
			seen[l] = true
			order = append(order, l)
		}
	}
	for _, c := range d.Components {
		if !seen[c.Layer] {
			seen[c.Layer] = true
			order = append(order, c.Layer)
		}
	}
	return order
}

// HasComponent reports whether a component with the given id exists.
func (d *Data) HasComponent(id string) bool {
	for _, c := range d.Components {
		if c.ID == id {
			return true
		}
	}
	return false
}
