package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"unknown method", func(p *Profile) { p.Method = "blob" }},
		{"unknown graph", func(p *Profile) { p.NeighborGraph = "voronoi" }},
		{"unknown spacing", func(p *Profile) { p.Spacing = "average" }},
		{"zero diameter", func(p *Profile) { p.MinDiameterUm = 0 }},
		{"inverted diameters", func(p *Profile) { p.MinDiameterUm = 10; p.MaxDiameterUm = 5 }},
		{"circularity above 1", func(p *Profile) { p.MinCircularity = 1.5 }},
		{"negative overlap", func(p *Profile) { p.Overlap = -0.1 }},
		{"negative max edge factor", func(p *Profile) { p.MaxEdgeFactor = -1 }},
		{"negative weight", func(p *Profile) { p.HexWeights.Degree = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestDefaultHexWeights(t *testing.T) {
	w := DefaultHexWeights()
	assert.Equal(t, 0.40, w.Spacing)
	assert.Equal(t, 0.45, w.Degree)
	assert.Equal(t, 0.15, w.EdgeRatio)
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"default", "fine", "coarse", "ellipse"} {
		p, ok := Get(name)
		require.True(t, ok, "preset %q missing", name)
		assert.Equal(t, name, p.Name)
		assert.NoError(t, p.Validate())
	}

	_, ok := Get("nonexistent")
	assert.False(t, ok)
	assert.Contains(t, List(), "default")
}

func TestWithBuilders(t *testing.T) {
	p := Default()
	q := p.WithMethod(MethodDoG).WithDiameterRange(1, 3).WithGraph(GraphRNG, 2.0)

	assert.Equal(t, MethodDoG, q.Method)
	assert.Equal(t, 1.0, q.MinDiameterUm)
	assert.Equal(t, GraphRNG, q.NeighborGraph)
	assert.Equal(t, 2.0, q.MaxEdgeFactor)
	// The original is untouched.
	assert.Equal(t, MethodLoG, p.Method)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")

	p := Default().WithMethod(MethodEllipse)
	require.NoError(t, p.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")

	p := Default()
	p.Method = "bogus"
	require.NoError(t, p.SaveToFile(path))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}
