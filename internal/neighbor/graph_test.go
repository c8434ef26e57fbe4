package neighbor

import (
	"testing"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"
	"scale-metrics/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalibration(t *testing.T) calibration.Data {
	t.Helper()
	calib, err := calibration.FromUmPerPixel(0.33)
	require.NoError(t, err)
	return calib
}

// makeTubercles builds a detection-ordered set from centroids with a uniform
// diameter.
func makeTubercles(points []geometry.Point2D, diameterPx float64, calib calibration.Data) []tubercle.Tubercle {
	ts := make([]tubercle.Tubercle, len(points))
	for i, p := range points {
		ts[i] = tubercle.Tubercle{
			ID:          i + 1,
			Center:      p,
			DiameterPx:  diameterPx,
			DiameterUm:  calib.PxToUm(diameterPx),
			Circularity: 1.0,
		}
	}
	return ts
}

func edgeSet(g *Graph) map[[2]int]bool {
	set := make(map[[2]int]bool)
	for _, e := range g.Edges {
		set[[2]int{e.ID1, e.ID2}] = true
	}
	return set
}

// scatteredPoints is a fixed irregular set used for the subset properties.
var scatteredPoints = []geometry.Point2D{
	{12, 7}, {43, 15}, {78, 9}, {23, 38}, {55, 42}, {90, 35},
	{8, 70}, {37, 66}, {68, 74}, {95, 68}, {20, 95}, {50, 99},
	{82, 92}, {64, 22}, {31, 84},
}

func TestFilterSubsetChain(t *testing.T) {
	calib := testCalibration(t)

	build := func(gt profile.GraphType) *Graph {
		ts := makeTubercles(scatteredPoints, 4, calib)
		g := Build(ts, calib, gt, 0)
		require.Equal(t, StatusOK, g.Status)
		return g
	}

	del := edgeSet(build(profile.GraphDelaunay))
	gab := edgeSet(build(profile.GraphGabriel))
	rng := edgeSet(build(profile.GraphRNG))

	for e := range gab {
		assert.True(t, del[e], "gabriel edge %v missing from delaunay", e)
	}
	for e := range rng {
		assert.True(t, gab[e], "rng edge %v missing from gabriel", e)
	}
	assert.GreaterOrEqual(t, len(del), len(gab))
	assert.GreaterOrEqual(t, len(gab), len(rng))
}

func TestEdgesAreCanonicalAndUnique(t *testing.T) {
	calib := testCalibration(t)
	ts := makeTubercles(scatteredPoints, 4, calib)
	g := Build(ts, calib, profile.GraphDelaunay, 0)

	seen := make(map[[2]int]bool)
	for _, e := range g.Edges {
		assert.Less(t, e.ID1, e.ID2)
		key := [2]int{e.ID1, e.ID2}
		assert.False(t, seen[key], "duplicate edge %v", key)
		seen[key] = true
	}
}

func TestGabrielRemovesBlockedEdge(t *testing.T) {
	calib := testCalibration(t)
	// c sits strictly inside the circle with diameter ab, so Gabriel must
	// drop (a,b) while Delaunay keeps the full triangle.
	pts := []geometry.Point2D{{0, 0}, {10, 0}, {5, 1}}

	del := Build(makeTubercles(pts, 1, calib), calib, profile.GraphDelaunay, 0)
	require.Len(t, del.Edges, 3)

	gab := Build(makeTubercles(pts, 1, calib), calib, profile.GraphGabriel, 0)
	require.Len(t, gab.Edges, 2)
	assert.False(t, edgeSet(gab)[[2]int{1, 2}], "edge (a,b) should be Gabriel-blocked")
}

func TestRNGStricterThanGabriel(t *testing.T) {
	calib := testCalibration(t)
	// c is outside the diameter circle of ab (Gabriel keeps it) but inside
	// the lune (RNG drops it).
	pts := []geometry.Point2D{{0, 0}, {10, 0}, {5, 6}}

	gab := Build(makeTubercles(pts, 1, calib), calib, profile.GraphGabriel, 0)
	assert.Len(t, gab.Edges, 3)

	rng := Build(makeTubercles(pts, 1, calib), calib, profile.GraphRNG, 0)
	require.Len(t, rng.Edges, 2)
	assert.False(t, edgeSet(rng)[[2]int{1, 2}], "edge (a,b) should be RNG-blocked")
}

func TestMaxEdgeFilterDropsOutliers(t *testing.T) {
	calib := testCalibration(t)
	// Tight cluster plus one far-away point: the long edges to it exceed
	// 1.5x the median and are removed, whatever the graph type.
	pts := []geometry.Point2D{{0, 0}, {10, 0}, {0, 10}, {10, 10}, {200, 5}}

	unfiltered := Build(makeTubercles(pts, 1, calib), calib, profile.GraphDelaunay, 0)
	filtered := Build(makeTubercles(pts, 1, calib), calib, profile.GraphDelaunay, 1.5)

	assert.Less(t, len(filtered.Edges), len(unfiltered.Edges))
	for _, e := range filtered.Edges {
		assert.NotEqual(t, 5, e.ID2, "edges to the outlier must be dropped")
	}
}

func TestDegenerateInputs(t *testing.T) {
	calib := testCalibration(t)
	tests := []struct {
		name string
		pts  []geometry.Point2D
	}{
		{"empty", nil},
		{"single", []geometry.Point2D{{5, 5}}},
		{"pair", []geometry.Point2D{{0, 0}, {10, 10}}},
		{"collinear", []geometry.Point2D{{0, 0}, {5, 5}, {10, 10}, {20, 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Build(makeTubercles(tt.pts, 1, calib), calib, profile.GraphDelaunay, 0)
			assert.Equal(t, StatusDegenerate, g.Status)
			assert.Empty(t, g.Edges)
			assert.Equal(t, "insufficient data", g.Status.String())
		})
	}
}

func TestBuildWithCoincidentCentroids(t *testing.T) {
	calib := testCalibration(t)
	// A manual placement on top of an extracted tubercle duplicates a
	// centroid; the field is still measurable, not degenerate.
	pts := []geometry.Point2D{{0, 0}, {0, 0}, {10, 0}, {5, 5}}
	ts := makeTubercles(pts, 2, calib)

	g := Build(ts, calib, profile.GraphDelaunay, 0)
	assert.Equal(t, StatusOK, g.Status)
	assert.NotEmpty(t, g.Edges)
}

func TestBoundaryFlagging(t *testing.T) {
	calib := testCalibration(t)
	// Hexagonal star: 6 ring points on the hull, 1 interior center.
	pts := append(geometry.GenerateCirclePoints(50, 50, 10, 6), geometry.Point2D{X: 50, Y: 50})
	ts := makeTubercles(pts, 2, calib)

	g := Build(ts, calib, profile.GraphDelaunay, 0)
	require.Equal(t, StatusOK, g.Status)

	for i := 0; i < 6; i++ {
		assert.True(t, ts[i].IsBoundary, "ring point %d should be boundary", i)
	}
	assert.False(t, ts[6].IsBoundary, "center should be interior")
}

func TestEdgeDistances(t *testing.T) {
	calib := testCalibration(t)
	// Two disks of radius 3 with centers 10 apart: gap is 4 px.
	pts := []geometry.Point2D{{0, 0}, {10, 0}, {5, 8}}
	ts := makeTubercles(pts, 6, calib)

	g := Build(ts, calib, profile.GraphDelaunay, 0)
	require.Equal(t, StatusOK, g.Status)

	var found bool
	for _, e := range g.Edges {
		if e.ID1 == 1 && e.ID2 == 2 {
			found = true
			assert.InDelta(t, 10.0, e.CenterDistPx, 1e-9)
			assert.InDelta(t, 4.0, e.EdgeDistPx, 1e-9)
			assert.InDelta(t, calib.PxToUm(4.0), e.EdgeDistUm, 1e-9)
		}
	}
	assert.True(t, found)
}

func TestOverlappingDetectionsKeptInGraph(t *testing.T) {
	calib := testCalibration(t)
	// Disks of radius 4 with centers 6 apart overlap: the edge stays in the
	// graph with a negative gap.
	pts := []geometry.Point2D{{0, 0}, {6, 0}, {3, 20}}
	ts := makeTubercles(pts, 8, calib)

	g := Build(ts, calib, profile.GraphDelaunay, 0)
	require.Equal(t, StatusOK, g.Status)
	require.Len(t, g.Edges, 3)

	var overlapping *Edge
	for i := range g.Edges {
		if g.Edges[i].ID1 == 1 && g.Edges[i].ID2 == 2 {
			overlapping = &g.Edges[i]
		}
	}
	require.NotNil(t, overlapping)
	assert.Negative(t, overlapping.EdgeDistPx)
	assert.Negative(t, overlapping.EdgeDistUm)
}
