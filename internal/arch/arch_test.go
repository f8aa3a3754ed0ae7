package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsDanglingRelationships(t *testing.T) {
	d := &Data{
		Components: []Component{
			{ID: "a", Name: "A", Layer: "services"},
			{ID: "b", Name: "B", Layer: "data"},
		},
		Relationships: []Relationship{
			{From: "a", To: "b", Kind: "calls"},
			{From: "a", To: "c", Kind: "calls"},
			{From: "x", To: "b", Kind: "uses"},
		},
	}

	dropped := d.Normalize()
	assert.Equal(t, 2, dropped)
	require.Len(t, d.Relationships, 1)
	assert.Equal(t, "b", d.Relationships[0].To)
}

func TestNormalizeDeduplicatesComponents(t *testing.T) {
	d := &Data{
		Components: []Component{
			{ID: " api ", Name: "API", Layer: "Services", Kind: "Service"},
			{ID: "api", Name: "Duplicate"},
			{ID: "", Name: "No id"},
			{ID: "db"},
		},
	}

	d.Normalize()
	require.Len(t, d.Components, 2)
	assert.Equal(t, "api", d.Components[0].ID)
	assert.Equal(t, "API", d.Components[0].Name)
	assert.Equal(t, "services", d.Components[0].Layer)
	assert.Equal(t, "service", d.Components[0].Kind)
	assert.Equal(t, "db", d.Components[1].Name, "missing name falls back to id")
}

func TestLayerOrder(t *testing.T) {
	tests := []struct {
		name string
		data Data
		want []string
	}{
		{
			name: "explicit order",
			data: Data{
				Layers:     []string{"data", "services"},
				Components: []Component{{ID: "a", Layer: "services"}, {ID: "b", Layer: "data"}},
			},
			want: []string{"data", "services"},
		},
		{
			name: "observed order when list absent",
			data: Data{
				Components: []Component{{ID: "a", Layer: "state"}, {ID: "b", Layer: "presentation"}, {ID: "c", Layer: "state"}},
			},
			want: []string{"state", "presentation"},
		},
		{
			name: "unlisted component layer appended",
			data: Data{
				Layers:     []string{"services"},
				Components: []Component{{ID: "a", Layer: "external"}, {ID: "b", Layer: "services"}},
			},
			want: []string{"services", "external"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.LayerOrder())
		})
	}
}

func TestHasComponent(t *testing.T) {
	d := Data{Components: []Component{{ID: "a"}}}
	assert.True(t, d.HasComponent("a"))
	assert.False(t, d.HasComponent("b"))
}
