package neighbor

import (
	"math"

	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"

	"gonum.org/v1/gonum/stat"
)

// idealDegree is the neighbor count of an interior node in a hexagonal
// lattice; idealEdgeRatio is the edge/node ratio of a hexagonal mesh.
const (
	idealDegree    = 6.0
	idealEdgeRatio = 2.5
)

// HexScore rates how close a tubercle layout is to an ideal hexagonal
// packing. Sub-scores are each clamped to [0,1] before weighting, so the
// composite is bounded for any non-negative weights.
type HexScore struct {
	Score             float64 `json:"score"`
	SpacingUniformity float64 `json:"spacing_uniformity"`
	DegreeScore       float64 `json:"degree_score"`
	EdgeRatioScore    float64 `json:"edge_ratio_score"`
}

// ScoreHexagonalness computes the composite lattice-quality score:
//
//	0.40*SpacingUniformity + 0.45*DegreeScore + 0.15*EdgeRatioScore
//
// with the default weights. The second return value is false when the graph
// is degenerate or empty; the score is then undefined ("insufficient
// data"), deliberately distinct from a perfectly irregular layout scoring 0.
// Custom weights are renormalized by their sum.
func ScoreHexagonalness(ts []tubercle.Tubercle, g *Graph, w profile.HexWeights) (HexScore, bool) {
	if g == nil || g.Status != StatusOK || len(g.Edges) == 0 || len(ts) == 0 {
		return HexScore{}, false
	}
	total := w.Spacing + w.Degree + w.EdgeRatio
	if total <= 0 {
		return HexScore{}, false
	}

	hs := HexScore{
		SpacingUniformity: spacingUniformity(g),
		DegreeScore:       degreeScore(ts, g),
		EdgeRatioScore:    edgeRatioScore(len(ts), len(g.Edges)),
	}
	hs.Score = (w.Spacing*hs.SpacingUniformity + w.Degree*hs.DegreeScore + w.EdgeRatio*hs.EdgeRatioScore) / total
	return hs, true
}

// spacingUniformity maps the coefficient of variation of retained edge
// lengths to [0,1]: zero variation scores 1. A single retained edge has no
// variation to measure; the sample standard deviation would be NaN there.
func spacingUniformity(g *Graph) float64 {
	lengths := make([]float64, len(g.Edges))
	for i, e := range g.Edges {
		lengths[i] = e.CenterDistPx
	}
	mean := stat.Mean(lengths, nil)
	if mean <= 0 {
		return 0
	}
	if len(lengths) < 2 {
		return 1
	}
	cv := stat.StdDev(lengths, nil) / mean
	return clamp01(1 - cv)
}

// degreeScore compares each non-boundary node's neighbor count against the
// ideal interior degree of 6. Boundary nodes are excluded entirely to avoid
// penalizing edge-of-frame truncation; if every node is on the boundary the
// whole set is scored instead.
func degreeScore(ts []tubercle.Tubercle, g *Graph) float64 {
	degrees := g.Degrees()

	var sum float64
	var n int
	for _, t := range ts {
		if t.IsBoundary {
			continue
		}
		sum += clamp01(1 - math.Abs(float64(degrees[t.ID])-idealDegree)/idealDegree)
		n++
	}
	if n == 0 {
		for _, t := range ts {
			sum += clamp01(1 - math.Abs(float64(degrees[t.ID])-idealDegree)/idealDegree)
			n++
		}
	}
	return sum / float64(n)
}

// edgeRatioScore compares the edge/node ratio against the ideal hexagonal
// mesh ratio of ~2.5.
func edgeRatioScore(nodes, edges int) float64 {
	if nodes == 0 {
		return 0
	}
	ratio := float64(edges) / float64(nodes)
	return clamp01(1 - math.Abs(ratio-idealEdgeRatio)/idealEdgeRatio)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
