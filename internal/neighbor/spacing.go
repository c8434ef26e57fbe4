package neighbor

import (
	"fmt"
	"math"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"

	"github.com/montanaflynn/stats"
)

// SpacingPolicy derives intertubercular distances (micrometers, edge-to-edge)
// from a detection run. Negative gaps from overlapping detections are never
// reported.
type SpacingPolicy interface {
	Distances(ts []tubercle.Tubercle, g *Graph, calib calibration.Data) []float64
}

// ForSpacing returns the policy implementing the given spacing method.
func ForSpacing(m profile.SpacingMethod) (SpacingPolicy, error) {
	switch m {
	case profile.SpacingNearest:
		return nearestPolicy{}, nil
	case profile.SpacingGraph:
		return graphPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown spacing method %q", m)
	}
}

// nearestPolicy measures, for each tubercle, the edge-to-edge gap to its
// single closest neighbor by center distance, independent of the filtered
// graph. This matches the manual methodology of the reference literature,
// which measures only immediately adjacent pairs. Ties break to the lowest
// neighbor id.
type nearestPolicy struct{}

func (nearestPolicy) Distances(ts []tubercle.Tubercle, _ *Graph, calib calibration.Data) []float64 {
	var values []float64
	for i := range ts {
		nearest := -1
		best := math.Inf(1)
		for j := range ts {
			if i == j {
				continue
			}
			d := ts[i].Center.Distance(ts[j].Center)
			if d < best || (d == best && nearest >= 0 && ts[j].ID < ts[nearest].ID) {
				best = d
				nearest = j
			}
		}
		if nearest < 0 {
			continue
		}
		gap := calib.PxToUm(best - ts[i].RadiusPx() - ts[nearest].RadiusPx())
		if gap >= 0 {
			values = append(values, gap)
		}
	}
	return values
}

// graphPolicy averages over all edges retained by the neighbor graph. Long
// triangulation edges across coverage gaps bias this upward; it is offered
// for comparison, not as the validated default.
type graphPolicy struct{}

func (graphPolicy) Distances(_ []tubercle.Tubercle, g *Graph, _ calibration.Data) []float64 {
	var values []float64
	for _, e := range g.Edges {
		if e.EdgeDistUm >= 0 {
			values = append(values, e.EdgeDistUm)
		}
	}
	return values
}

// Summary holds a value list with its aggregate statistics, ready for
// serialization without further derivation.
type Summary struct {
	Values []float64 `json:"values"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Count  int       `json:"count"`
}

// Summarize computes mean and population standard deviation for a value list.
func Summarize(values []float64) Summary {
	s := Summary{Values: values, Count: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(values)
	s.Std, _ = stats.StandardDeviation(values)
	return s
}
