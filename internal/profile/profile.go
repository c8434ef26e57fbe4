// Package profile defines the detection parameter bundle for a pipeline run
// and a registry of named presets.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Method selects the detection strategy.
type Method string

const (
	MethodLoG     Method = "log"     // Laplacian-of-Gaussian scale-space blobs
	MethodDoG     Method = "dog"     // Difference-of-Gaussians approximation
	MethodEllipse Method = "ellipse" // Threshold + watershed + ellipse fit
)

// GraphType selects the neighbor-graph filter applied to the Delaunay
// triangulation.
type GraphType string

const (
	GraphDelaunay GraphType = "delaunay"
	GraphGabriel  GraphType = "gabriel"
	GraphRNG      GraphType = "rng"
)

// SpacingMethod selects how intertubercular spacing is sampled.
type SpacingMethod string

const (
	SpacingNearest SpacingMethod = "nearest" // per-node nearest neighbor (default)
	SpacingGraph   SpacingMethod = "graph"   // all retained graph edges
)

// HexWeights holds the sub-score weights of the hexagonalness composite.
// The defaults are empirically tuned; changing them shifts scores across the
// whole corpus of measurements, so treat them as calibrated constants.
type HexWeights struct {
	Spacing   float64 `json:"spacing"`
	Degree    float64 `json:"degree"`
	EdgeRatio float64 `json:"edge_ratio"`
}

// DefaultHexWeights returns the validated hexagonalness weighting.
func DefaultHexWeights() HexWeights {
	return HexWeights{Spacing: 0.40, Degree: 0.45, EdgeRatio: 0.15}
}

// Profile is the immutable parameter bundle for one pipeline run.
// Pure configuration, no behavior beyond validation.
type Profile struct {
	Name   string `json:"name"`
	Method Method `json:"method"`

	// Tubercle size bounds in micrometers. Converted to pixels through the
	// calibration at detection time, never hand-tuned per image.
	MinDiameterUm float64 `json:"min_diameter_um"`
	MaxDiameterUm float64 `json:"max_diameter_um"`

	// Shape constraint: 4*pi*area/perimeter^2, perfect circle = 1.0.
	MinCircularity float64 `json:"min_circularity"`

	// Detection sensitivity: minimum normalized blob response (LoG/DoG).
	Threshold float64 `json:"threshold"`

	// Overlap suppression: candidates overlapping a stronger response by more
	// than this fraction of the smaller disk are dropped.
	Overlap float64 `json:"overlap"`

	// Preprocessing knobs.
	CLAHEClipLimit float64 `json:"clahe_clip_limit"`
	CLAHETileSize  int     `json:"clahe_tile_size"`
	SmoothDiameter int     `json:"smooth_diameter"` // bilateral filter pixel neighborhood

	// Ellipse refinement of LoG/DoG blobs (membership unchanged).
	RefineEllipse bool `json:"refine_ellipse"`

	// Neighbor graph construction.
	NeighborGraph GraphType     `json:"neighbor_graph"`
	MaxEdgeFactor float64       `json:"max_edge_factor"` // 0 disables the filter
	Spacing       SpacingMethod `json:"spacing_method"`

	HexWeights HexWeights `json:"hex_weights"`

	// Usability floor: fewer detections downgrade confidence but do not fail.
	MinCount int `json:"min_count"`
}

// Default returns the validated default profile.
func Default() Profile {
	return Profile{
		Name:           "default",
		Method:         MethodLoG,
		MinDiameterUm:  0.8,
		MaxDiameterUm:  6.0,
		MinCircularity: 0.60,
		Threshold:      0.08,
		Overlap:        0.50,
		CLAHEClipLimit: 2.0,
		CLAHETileSize:  8,
		SmoothDiameter: 5,
		NeighborGraph:  GraphGabriel,
		MaxEdgeFactor:  1.8,
		Spacing:        SpacingNearest,
		HexWeights:     DefaultHexWeights(),
		MinCount:       8,
	}
}

// Validate checks the profile for internally consistent values.
func (p Profile) Validate() error {
	switch p.Method {
	case MethodLoG, MethodDoG, MethodEllipse:
	default:
		return fmt.Errorf("unknown detection method %q", p.Method)
	}
	switch p.NeighborGraph {
	case GraphDelaunay, GraphGabriel, GraphRNG:
	default:
		return fmt.Errorf("unknown neighbor graph %q", p.NeighborGraph)
	}
	switch p.Spacing {
	case SpacingNearest, SpacingGraph:
	default:
		return fmt.Errorf("unknown spacing method %q", p.Spacing)
	}
	if p.MinDiameterUm <= 0 || p.MaxDiameterUm <= 0 {
		return fmt.Errorf("diameter bounds must be positive")
	}
	if p.MinDiameterUm >= p.MaxDiameterUm {
		return fmt.Errorf("min diameter %g um must be below max %g um", p.MinDiameterUm, p.MaxDiameterUm)
	}
	if p.MinCircularity < 0 || p.MinCircularity > 1 {
		return fmt.Errorf("min circularity must be in [0,1], got %g", p.MinCircularity)
	}
	if p.Overlap < 0 || p.Overlap > 1 {
		return fmt.Errorf("overlap factor must be in [0,1], got %g", p.Overlap)
	}
	if p.MaxEdgeFactor < 0 {
		return fmt.Errorf("max edge factor must be >= 0, got %g", p.MaxEdgeFactor)
	}
	if w := p.HexWeights; w.Spacing < 0 || w.Degree < 0 || w.EdgeRatio < 0 {
		return fmt.Errorf("hexagonalness weights must be non-negative")
	}
	return nil
}

// WithMethod returns a copy of the profile with a different detection method.
func (p Profile) WithMethod(m Method) Profile {
	p.Method = m
	return p
}

// WithDiameterRange returns a copy with custom diameter bounds in micrometers.
func (p Profile) WithDiameterRange(minUm, maxUm float64) Profile {
	p.MinDiameterUm = minUm
	p.MaxDiameterUm = maxUm
	return p
}

// WithGraph returns a copy with a different neighbor-graph configuration.
func (p Profile) WithGraph(g GraphType, maxEdgeFactor float64) Profile {
	p.NeighborGraph = g
	p.MaxEdgeFactor = maxEdgeFactor
	return p
}

// SaveToFile saves the profile to a JSON file.
func (p Profile) SaveToFile(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a profile from a JSON file.
func LoadFromFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}
	return p, nil
}

// Registry of named presets.
var registry = make(map[string]Profile)

// Register adds a profile preset to the registry.
func Register(p Profile) {
	registry[p.Name] = p
}

// Get returns a preset by name. The second value is false if no preset with
// that name is registered.
func Get(name string) (Profile, bool) {
	p, ok := registry[name]
	return p, ok
}

// List returns all registered preset names.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func init() {
	Register(Default())

	fine := Default()
	fine.Name = "fine"
	fine.MinDiameterUm = 0.5
	fine.MaxDiameterUm = 2.5
	fine.Threshold = 0.05
	Register(fine)

	coarse := Default()
	coarse.Name = "coarse"
	coarse.MinDiameterUm = 2.0
	coarse.MaxDiameterUm = 10.0
	Register(coarse)

	ellipse := Default()
	ellipse.Name = "ellipse"
	ellipse.Method = MethodEllipse
	Register(ellipse)
}
