package pipeline

import (
	"image"
	"math"
	"testing"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/genus"
	"scale-metrics/internal/neighbor"
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

func tuberclesAt(points []geometry.Point2D, diameterPx float64, calib calibration.Data) []tubercle.Tubercle {
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

// hexLattice builds a triangular lattice where every nearest-neighbor pair is
// exactly spacing apart, the packing a perfect tubercle field approaches.
func hexLattice(spacing float64) []geometry.Point2D {
	rows := []int{7, 6, 7, 6, 7, 6, 4}
	dy := spacing * math.Sqrt(3) / 2

	var pts []geometry.Point2D
	for r, n := range rows {
		xOff := 0.0
		if r%2 == 1 {
			xOff = spacing / 2
		}
		for c := 0; c < n; c++ {
			pts = append(pts, geometry.Point2D{
				X: 30 + xOff + float64(c)*spacing,
				Y: 30 + float64(r)*dy,
			})
		}
	}
	return pts
}

func TestMeasureHexagonalLattice(t *testing.T) {
	calib := testCalibration(t)
	// 43 disks of 5.9 px on an 11.85 px lattice: 1.947 um diameter and a
	// 1.9635 um edge-to-edge gap, squarely inside the Polypterus ranges.
	ts := tuberclesAt(hexLattice(11.85), 5.9, calib)
	require.Len(t, ts, 43)

	res, err := Measure(ts, calib, profile.Default())
	require.NoError(t, err)

	assert.False(t, res.LowDetectionCount)
	assert.False(t, res.DegenerateGraph)
	assert.Equal(t, neighbor.StatusOK, res.Graph.Status)

	assert.Equal(t, 43, res.Diameter.Count)
	assert.InDelta(t, 1.947, res.Diameter.Mean, 1e-9)
	assert.InDelta(t, 0.0, res.Diameter.Std, 1e-9)

	assert.Equal(t, 43, res.Spacing.Count)
	assert.InDelta(t, 1.9635, res.Spacing.Mean, 1e-6)

	require.True(t, res.HexValid)
	assert.GreaterOrEqual(t, res.Hexagonalness.Score, 0.7, "a regular lattice must score high")
	assert.InDelta(t, 1.0, res.Hexagonalness.SpacingUniformity, 0.15)

	assert.Equal(t, "Polypterus", res.Genus.Genus)
	assert.Equal(t, genus.ConfidenceHigh, res.Genus.Confidence)
}

func TestMeasureGraphSpacingSkipsOverlaps(t *testing.T) {
	calib := testCalibration(t)
	// Disks 1 and 2 overlap (radius 4, centers 6 apart); their edge stays in
	// the graph but contributes no spacing sample.
	pts := []geometry.Point2D{{0, 0}, {6, 0}, {3, 20}}
	ts := tuberclesAt(pts, 8, calib)

	prof := profile.Default()
	prof.Spacing = profile.SpacingGraph

	res, err := Measure(ts, calib, prof)
	require.NoError(t, err)

	require.Len(t, res.Graph.Edges, 3)
	assert.Equal(t, 2, res.Spacing.Count)
	assert.True(t, res.LowDetectionCount)
	assert.Equal(t, genus.ConfidenceLow, res.Genus.Confidence)
}

func TestMeasureDegenerateGraph(t *testing.T) {
	calib := testCalibration(t)
	ts := tuberclesAt([]geometry.Point2D{{0, 0}, {30, 30}}, 6, calib)

	res, err := Measure(ts, calib, profile.Default())
	require.NoError(t, err, "degeneracy is a status, not a failure")

	assert.True(t, res.DegenerateGraph)
	assert.Equal(t, neighbor.StatusDegenerate, res.Graph.Status)
	assert.Zero(t, res.Spacing.Count)
	assert.False(t, res.HexValid)
	assert.Equal(t, genus.ConfidenceLow, res.Genus.Confidence)
	// Diameter statistics are still produced from what was detected.
	assert.Equal(t, 2, res.Diameter.Count)
}

func TestMeasureLowDetectionCountCapsConfidence(t *testing.T) {
	calib := testCalibration(t)
	// A clean Polypterus-like patch, but below the minimum count.
	dy := 11.85 * math.Sqrt(3) / 2
	pts := []geometry.Point2D{
		{0, 0}, {11.85, 0}, {5.925, dy}, {17.775, dy}, {11.85, 2 * dy},
	}
	ts := tuberclesAt(pts, 5.9, calib)

	res, err := Measure(ts, calib, profile.Default())
	require.NoError(t, err)

	assert.True(t, res.LowDetectionCount)
	assert.Equal(t, "Polypterus", res.Genus.Genus)
	assert.Equal(t, genus.ConfidenceLow, res.Genus.Confidence)
}

func TestMeasureInvalidCalibration(t *testing.T) {
	_, err := Measure(nil, calibration.Data{}, profile.Default())
	require.ErrorIs(t, err, calibration.ErrInvalidCalibration)
}

func TestMeasureInvalidProfile(t *testing.T) {
	calib := testCalibration(t)
	prof := profile.Default()
	prof.Method = "bogus"

	_, err := Measure(nil, calib, prof)
	assert.Error(t, err)
}

func TestBatchBlankImages(t *testing.T) {
	calib := testCalibration(t)
	// Featureless frames detect nothing; each pass still completes and
	// reports the empty result through status flags.
	images := []image.Image{
		image.NewGray(image.Rect(0, 0, 64, 64)),
		image.NewGray(image.Rect(0, 0, 64, 64)),
	}

	results, errs := Batch(images, calib, profile.Default())
	require.Len(t, results, 2)
	require.Len(t, errs, 2)
	for i := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Empty(t, results[i].Tubercles)
		assert.True(t, results[i].LowDetectionCount)
		assert.True(t, results[i].DegenerateGraph)
	}
}
