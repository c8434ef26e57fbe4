// Package tubercle provides detection of ganoine surface tubercles on
// calibrated scale micrographs.
package tubercle

import (
	"fmt"
	"math"

	"scale-metrics/internal/calibration"
	"scale-metrics/pkg/geometry"
)

// Source indicates how a tubercle entered the set.
type Source int

const (
	// SourceExtracted indicates automatic detection.
	SourceExtracted Source = iota
	// SourceManual indicates a manually placed tubercle (user input).
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceExtracted:
		return "extracted"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Ellipse describes a fitted ellipse for a tubercle.
type Ellipse struct {
	MajorPx      float64 `json:"major_px"`     // Major axis length in pixels
	MinorPx      float64 `json:"minor_px"`     // Minor axis length in pixels
	AngleDeg     float64 `json:"angle_deg"`    // Orientation of the major axis
	Eccentricity float64 `json:"eccentricity"` // 0 for a circle
}

// Tubercle represents a single detected micro-relief on the ganoine surface.
type Tubercle struct {
	ID          int              `json:"id"`          // Unique within a detection run, assigned from 1
	Center      geometry.Point2D `json:"center"`      // Centroid in image coordinates (pixels)
	DiameterPx  float64          `json:"diameter_px"` // Equivalent diameter in pixels
	DiameterUm  float64          `json:"diameter_um"` // Derived via calibration, never stored independently
	AreaPx      float64          `json:"area_px"`     // Blob area in square pixels
	Circularity float64          `json:"circularity"` // 4*pi*area/perimeter^2, perfect circle = 1.0
	Ellipse     *Ellipse         `json:"ellipse,omitempty"`
	IsBoundary  bool             `json:"is_boundary"` // On the convex hull of the detected field
	Source      Source           `json:"source"`

	// Detector response strength, used for overlap suppression.
	Response float64 `json:"response"`
}

// RadiusPx returns half the equivalent diameter.
func (t Tubercle) RadiusPx() float64 {
	return t.DiameterPx / 2
}

// RadiusUm returns half the equivalent diameter in micrometers.
func (t Tubercle) RadiusUm() float64 {
	return t.DiameterUm / 2
}

// String returns a human-readable representation.
func (t Tubercle) String() string {
	return fmt.Sprintf("Tubercle{ID:%d, Center:(%.1f,%.1f), Diam:%.2fum, Circ:%.2f}",
		t.ID, t.Center.X, t.Center.Y, t.DiameterUm, t.Circularity)
}

// NewManual creates a manually placed tubercle at the given position.
// Manual placements carry full circularity since there is no blob to score.
func NewManual(center geometry.Point2D, diameterPx float64, calib calibration.Data) Tubercle {
	r := diameterPx / 2
	return Tubercle{
		Center:      center,
		DiameterPx:  diameterPx,
		DiameterUm:  calib.PxToUm(diameterPx),
		AreaPx:      math.Pi * r * r,
		Circularity: 1.0,
		Source:      SourceManual,
		Response:    1.0,
	}
}

// Centroids returns the centroid of every tubercle, in slice order.
func Centroids(ts []Tubercle) []geometry.Point2D {
	pts := make([]geometry.Point2D, len(ts))
	for i, t := range ts {
		pts[i] = t.Center
	}
	return pts
}
