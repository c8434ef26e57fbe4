package tubercle

import (
	"fmt"
	"math"
	"sort"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/profile"
	"scale-metrics/pkg/geometry"

	"gocv.io/x/gocv"
)

// Detector produces candidate tubercles from a preprocessed grayscale image.
// Implementations must not mutate the input Mat.
type Detector interface {
	Detect(pre gocv.Mat, calib calibration.Data, p profile.Profile) ([]Tubercle, error)
}

// ForMethod returns the detector implementing the given strategy.
func ForMethod(m profile.Method) (Detector, error) {
	switch m {
	case profile.MethodLoG:
		return logDetector{}, nil
	case profile.MethodDoG:
		return dogDetector{}, nil
	case profile.MethodEllipse:
		return ellipseDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown detection method %q", m)
	}
}

// postFilter rejects candidates outside the configured diameter range (in
// micrometers, via calibration) or below the circularity floor. Applied by
// every strategy.
func postFilter(cands []Tubercle, calib calibration.Data, p profile.Profile) []Tubercle {
	var kept []Tubercle
	for _, t := range cands {
		t.DiameterUm = calib.PxToUm(t.DiameterPx)
		if t.DiameterUm < p.MinDiameterUm || t.DiameterUm > p.MaxDiameterUm {
			continue
		}
		if t.Circularity < p.MinCircularity {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// suppressOverlaps removes candidates that overlap a stronger response by
// more than the configured fraction of the smaller disk. Candidates are
// considered strongest-first, so the winner of each cluster survives.
func suppressOverlaps(cands []Tubercle, overlap float64) []Tubercle {
	if len(cands) <= 1 {
		return cands
	}

	sorted := make([]Tubercle, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Response > sorted[j].Response
	})

	var result []Tubercle
	for _, c := range sorted {
		dup := false
		for i := range result {
			if diskOverlapFraction(c.Center, c.RadiusPx(), result[i].Center, result[i].RadiusPx()) > overlap {
				dup = true
				break
			}
		}
		if !dup {
			result = append(result, c)
		}
	}
	return result
}

// diskOverlapFraction returns the intersection area of two disks divided by
// the area of the smaller disk. 1.0 means the smaller disk is fully covered.
func diskOverlapFraction(c1 geometry.Point2D, r1 float64, c2 geometry.Point2D, r2 float64) float64 {
	if r1 <= 0 || r2 <= 0 {
		return 0
	}
	d := c1.Distance(c2)
	if d >= r1+r2 {
		return 0
	}
	small := math.Min(r1, r2)
	if d <= math.Abs(r1-r2) {
		return 1.0 // smaller disk fully inside the larger
	}

	// Circular lens area.
	d1 := (d*d + r1*r1 - r2*r2) / (2 * d)
	d2 := d - d1
	a1 := r1*r1*math.Acos(clampUnit(d1/r1)) - d1*math.Sqrt(math.Max(0, r1*r1-d1*d1))
	a2 := r2*r2*math.Acos(clampUnit(d2/r2)) - d2*math.Sqrt(math.Max(0, r2*r2-d2*d2))
	return (a1 + a2) / (math.Pi * small * small)
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// assignIDs orders tubercles top-to-bottom, left-to-right and numbers them
// sequentially from 1, so repeated runs over the same image are stable.
func assignIDs(ts []Tubercle) []Tubercle {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Center.Y != ts[j].Center.Y {
			return ts[i].Center.Y < ts[j].Center.Y
		}
		return ts[i].Center.X < ts[j].Center.X
	})
	for i := range ts {
		ts[i].ID = i + 1
	}
	return ts
}

// measureBlob walks outward from the candidate center at 32 evenly-spaced
// angles over a binary mask, finding the bright-region boundary in each
// direction. Directions whose transition lies beyond 1.5x the median are
// trace-like protrusions and are discarded; the remaining boundary points
// form a polygon from which area, perimeter and circularity
// (4*pi*area/perimeter^2) are computed.
func measureBlob(mask gocv.Mat, center geometry.Point2D, radius float64) (areaPx, circularity float64) {
	const numAngles = 32
	cx, cy := center.X, center.Y
	rows, cols := mask.Rows(), mask.Cols()
	maxWalk := radius * 3.0
	if maxWalk < 4 {
		maxWalk = 4
	}

	dists := make([]float64, numAngles)
	for i := 0; i < numAngles; i++ {
		angle := float64(i) * 2.0 * math.Pi / numAngles
		dx := math.Cos(angle)
		dy := math.Sin(angle)

		transR := maxWalk
		for step := 1.0; step <= maxWalk; step += 1.0 {
			px := int(cx + dx*step + 0.5)
			py := int(cy + dy*step + 0.5)
			if px < 0 || px >= cols || py < 0 || py >= rows || mask.GetUCharAt(py, px) == 0 {
				transR = step
				break
			}
		}
		dists[i] = transR
	}

	sorted := make([]float64, numAngles)
	copy(sorted, dists)
	sort.Float64s(sorted)
	median := sorted[numAngles/2]
	if median < 1.0 || median < radius*0.4 {
		// Center is not on a bright region of plausible size.
		return 0, 0
	}

	outlierThreshold := median * 1.5
	var boundary []geometry.Point2D
	for i, d := range dists {
		if d > outlierThreshold {
			continue
		}
		angle := float64(i) * 2.0 * math.Pi / numAngles
		boundary = append(boundary, geometry.Point2D{
			X: cx + math.Cos(angle)*d,
			Y: cy + math.Sin(angle)*d,
		})
	}
	if len(boundary) < 8 {
		return 0, 0
	}

	area := geometry.PolygonArea(boundary)
	perimeter := geometry.PolygonPerimeter(boundary)
	if perimeter <= 0 {
		return 0, 0
	}
	circ := 4 * math.Pi * area / (perimeter * perimeter)
	if circ > 1 {
		circ = 1
	}
	return area, circ
}
