// Package geometry provides basic 2D geometric types used throughout the
// measurement pipeline.
package geometry

import (
	"math"
	"sort"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Rect represents an axis-aligned rectangle with floating-point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ConvexHull computes the convex hull of a set of points using Graham scan.
// Returns the points forming the convex hull in counter-clockwise order.
// Fewer than three input points are returned unchanged.
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		return points
	}

	pts := make([]Point2D, len(points))
	copy(pts, points)

	// Pivot: lowest y, leftmost on ties.
	lowest := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Y < pts[lowest].Y ||
			(pts[i].Y == pts[lowest].Y && pts[i].X < pts[lowest].X) {
			lowest = i
		}
	}
	pts[0], pts[lowest] = pts[lowest], pts[0]
	pivot := pts[0]

	rest := pts[1:]
	sort.Slice(rest, func(i, j int) bool {
		cross := crossProduct(pivot, rest[i], rest[j])
		if cross != 0 {
			return cross > 0
		}
		return distSq(pivot, rest[i]) < distSq(pivot, rest[j])
	})

	hull := []Point2D{pivot}
	for _, p := range rest {
		for len(hull) > 1 && crossProduct(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull
}

// GenerateCirclePoints generates n evenly-spaced points around a circle.
func GenerateCirclePoints(centerX, centerY, radius float64, n int) []Point2D {
	points := make([]Point2D, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 2.0 * math.Pi / float64(n)
		points[i] = Point2D{
			X: centerX + radius*math.Cos(angle),
			Y: centerY + radius*math.Sin(angle),
		}
	}
	return points
}

// PolygonArea returns the area enclosed by a closed polygon (shoelace formula).
func PolygonArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var area float64
	j := n - 1
	for i := 0; i < n; i++ {
		area += polygon[j].X*polygon[i].Y - polygon[i].X*polygon[j].Y
		j = i
	}
	return math.Abs(area) / 2
}

// PolygonPerimeter returns the perimeter of a closed polygon.
func PolygonPerimeter(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 2 {
		return 0
	}
	var per float64
	j := n - 1
	for i := 0; i < n; i++ {
		per += polygon[j].Distance(polygon[i])
		j = i
	}
	return per
}

// Collinear reports whether every point lies on a single line, within a small
// area tolerance. A point set with fewer than three points, or with fewer than
// two distinct points, is collinear.
func Collinear(points []Point2D) bool {
	if len(points) < 3 {
		return true
	}
	// Reference pair must be distinct, or every cross product is zero and
	// duplicate leading points would mask a spread-out set.
	a := points[0]
	bi := -1
	for i := 1; i < len(points); i++ {
		if points[i].Distance(a) > 1e-9 {
			bi = i
			break
		}
	}
	if bi < 0 {
		return true
	}
	b := points[bi]
	for _, c := range points {
		if math.Abs(crossProduct(a, b, c)) > 1e-9 {
			return false
		}
	}
	return true
}

// crossProduct returns the z-component of (b-a) x (c-a).
func crossProduct(a, b, c Point2D) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func distSq(a, b Point2D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}
