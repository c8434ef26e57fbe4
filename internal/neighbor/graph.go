// Package neighbor builds and filters the geometric adjacency graph over
// detected tubercle centroids and derives intertubercular spacing from it.
package neighbor

import (
	"math"
	"sort"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"
	"scale-metrics/pkg/geometry"

	"github.com/fogleman/delaunay"
	"github.com/montanaflynn/stats"
)

// Status describes whether the graph could be constructed.
type Status int

const (
	// StatusOK indicates a valid triangulation was built.
	StatusOK Status = iota
	// StatusDegenerate indicates fewer than 3 non-collinear centroids;
	// spacing and hexagonalness are undefined, not zero.
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegenerate:
		return "insufficient data"
	default:
		return "unknown"
	}
}

// Edge is an undirected intertubercular connection. ID1 < ID2 always, so no
// duplicate unordered pairs can appear in a graph.
type Edge struct {
	ID1          int     `json:"id1"`
	ID2          int     `json:"id2"`
	CenterDistPx float64 `json:"center_distance_px"`
	CenterDistUm float64 `json:"center_distance_um"`
	// Edge-to-edge gap: center distance minus both radii. Negative for
	// overlapping detections; such edges stay in the graph but are excluded
	// from spacing statistics.
	EdgeDistPx float64 `json:"edge_distance_px"`
	EdgeDistUm float64 `json:"edge_distance_um"`
}

// Graph is the filtered neighbor graph of one detection run.
type Graph struct {
	Type   profile.GraphType `json:"type"`
	Edges  []Edge            `json:"edges"`
	Status Status            `json:"status"`
}

// indexEdge references two centroids by slice index, a < b.
type indexEdge struct {
	a, b int
}

// Build triangulates the centroid set, applies the configured filter chain
// and flags boundary tubercles in place. A degenerate point set yields an
// empty graph with StatusDegenerate, never an error.
func Build(ts []tubercle.Tubercle, calib calibration.Data, graphType profile.GraphType, maxEdgeFactor float64) *Graph {
	g := &Graph{Type: graphType, Status: StatusOK}

	pts := tubercle.Centroids(ts)
	if len(pts) < 3 || geometry.Collinear(pts) {
		g.Status = StatusDegenerate
		return g
	}

	dpts := make([]delaunay.Point, len(pts))
	for i, p := range pts {
		dpts[i] = delaunay.Point{X: p.X, Y: p.Y}
	}
	tri, err := delaunay.Triangulate(dpts)
	if err != nil {
		g.Status = StatusDegenerate
		return g
	}

	edges := delaunayEdges(tri)
	switch graphType {
	case profile.GraphGabriel:
		edges = gabrielFilter(pts, edges)
	case profile.GraphRNG:
		edges = rngFilter(pts, edges)
	}
	if maxEdgeFactor > 0 {
		edges = maxEdgeFilter(pts, edges, maxEdgeFactor)
	}

	flagBoundary(ts, pts, tri)

	g.Edges = make([]Edge, 0, len(edges))
	for _, e := range edges {
		ta, tb := ts[e.a], ts[e.b]
		centerPx := pts[e.a].Distance(pts[e.b])
		edgePx := centerPx - ta.RadiusPx() - tb.RadiusPx()

		id1, id2 := ta.ID, tb.ID
		if id1 > id2 {
			id1, id2 = id2, id1
		}
		g.Edges = append(g.Edges, Edge{
			ID1:          id1,
			ID2:          id2,
			CenterDistPx: centerPx,
			CenterDistUm: calib.PxToUm(centerPx),
			EdgeDistPx:   edgePx,
			EdgeDistUm:   calib.PxToUm(edgePx),
		})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].ID1 != g.Edges[j].ID1 {
			return g.Edges[i].ID1 < g.Edges[j].ID1
		}
		return g.Edges[i].ID2 < g.Edges[j].ID2
	})
	return g
}

// delaunayEdges extracts the unique undirected edge set from the
// triangulation's triangle index triples.
func delaunayEdges(tri *delaunay.Triangulation) []indexEdge {
	seen := make(map[indexEdge]bool)
	var edges []indexEdge
	for t := 0; t < len(tri.Triangles); t += 3 {
		corners := [3]int{tri.Triangles[t], tri.Triangles[t+1], tri.Triangles[t+2]}
		for i := 0; i < 3; i++ {
			a, b := corners[i], corners[(i+1)%3]
			if a > b {
				a, b = b, a
			}
			e := indexEdge{a, b}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}

// gabrielFilter keeps edge (a,b) iff no other point lies strictly inside the
// circle whose diameter is the segment ab.
func gabrielFilter(pts []geometry.Point2D, edges []indexEdge) []indexEdge {
	var kept []indexEdge
	for _, e := range edges {
		mid := geometry.Point2D{
			X: (pts[e.a].X + pts[e.b].X) / 2,
			Y: (pts[e.a].Y + pts[e.b].Y) / 2,
		}
		r := pts[e.a].Distance(pts[e.b]) / 2
		blocked := false
		for c := range pts {
			if c == e.a || c == e.b {
				continue
			}
			if pts[c].Distance(mid) < r {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, e)
		}
	}
	return kept
}

// rngFilter keeps edge (a,b) iff no point c exists with
// max(dist(a,c), dist(b,c)) < dist(a,b). Always a subset of the Gabriel
// graph over the same points.
func rngFilter(pts []geometry.Point2D, edges []indexEdge) []indexEdge {
	var kept []indexEdge
	for _, e := range edges {
		d := pts[e.a].Distance(pts[e.b])
		blocked := false
		for c := range pts {
			if c == e.a || c == e.b {
				continue
			}
			if math.Max(pts[c].Distance(pts[e.a]), pts[c].Distance(pts[e.b])) < d {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, e)
		}
	}
	return kept
}

// maxEdgeFilter drops edges longer than factor times the median edge length,
// removing outlier long edges regardless of graph type.
func maxEdgeFilter(pts []geometry.Point2D, edges []indexEdge, factor float64) []indexEdge {
	if len(edges) == 0 {
		return edges
	}
	lengths := make([]float64, len(edges))
	for i, e := range edges {
		lengths[i] = pts[e.a].Distance(pts[e.b])
	}
	median, err := stats.Median(lengths)
	if err != nil || median <= 0 {
		return edges
	}

	limit := factor * median
	var kept []indexEdge
	for i, e := range edges {
		if lengths[i] <= limit {
			kept = append(kept, e)
		}
	}
	return kept
}

// flagBoundary marks tubercles that are vertices of the centroid set's convex
// hull, plus any tubercle adjacent to a triangle with an abnormally large
// circumradius (edge-of-frame truncation artifacts). Boundary nodes are
// excluded from degree-based scoring.
func flagBoundary(ts []tubercle.Tubercle, pts []geometry.Point2D, tri *delaunay.Triangulation) {
	for i := range ts {
		ts[i].IsBoundary = false
	}

	const eps = 1e-9
	for _, h := range geometry.ConvexHull(pts) {
		for i, p := range pts {
			if math.Abs(p.X-h.X) < eps && math.Abs(p.Y-h.Y) < eps {
				ts[i].IsBoundary = true
			}
		}
	}

	// Circumradius outliers: more than 2.5x the median circumradius.
	nTriangles := len(tri.Triangles) / 3
	if nTriangles == 0 {
		return
	}
	radii := make([]float64, nTriangles)
	for t := 0; t < nTriangles; t++ {
		radii[t] = circumradius(
			pts[tri.Triangles[3*t]],
			pts[tri.Triangles[3*t+1]],
			pts[tri.Triangles[3*t+2]],
		)
	}
	median, err := stats.Median(radii)
	if err != nil || median <= 0 {
		return
	}
	for t := 0; t < nTriangles; t++ {
		if radii[t] > 2.5*median {
			ts[tri.Triangles[3*t]].IsBoundary = true
			ts[tri.Triangles[3*t+1]].IsBoundary = true
			ts[tri.Triangles[3*t+2]].IsBoundary = true
		}
	}
}

// circumradius returns the circumcircle radius of triangle abc.
func circumradius(a, b, c geometry.Point2D) float64 {
	ab := a.Distance(b)
	bc := b.Distance(c)
	ca := c.Distance(a)
	area := geometry.PolygonArea([]geometry.Point2D{a, b, c})
	if area <= 0 {
		return math.Inf(1)
	}
	return ab * bc * ca / (4 * area)
}

// Degrees returns the neighbor count per tubercle ID over the graph's edges.
func (g *Graph) Degrees() map[int]int {
	degrees := make(map[int]int)
	for _, e := range g.Edges {
		degrees[e.ID1]++
		degrees[e.ID2]++
	}
	return degrees
}
