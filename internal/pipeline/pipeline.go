// Package pipeline runs the full measurement pass over one micrograph:
// preprocessing, tubercle detection, neighbor-graph construction, spacing
// statistics, hexagonalness scoring and genus classification.
package pipeline

import (
	"fmt"
	"image"
	"sync"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/genus"
	"scale-metrics/internal/neighbor"
	"scale-metrics/internal/preprocess"
	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"

	"gocv.io/x/gocv"
)

// Result aggregates everything one pipeline pass produces. It is immutable
// once returned and carries every derived field (micrometer values,
// statistics) precomputed, so an external writer can serialize it directly.
type Result struct {
	Tubercles []tubercle.Tubercle `json:"tubercles"`
	Graph     *neighbor.Graph     `json:"graph"`

	Diameter neighbor.Summary `json:"diameter_um"`
	Spacing  neighbor.Summary `json:"spacing_um"`

	Hexagonalness neighbor.HexScore `json:"hexagonalness"`
	// HexValid is false when the graph was too degenerate to score;
	// Hexagonalness is then undefined rather than zero.
	HexValid bool `json:"hex_valid"`

	Genus genus.Result `json:"genus"`

	Calibration calibration.Data `json:"calibration"`
	Profile     profile.Profile  `json:"profile"`

	// Non-fatal conditions. The run still produces best-effort statistics.
	LowDetectionCount bool `json:"low_detection_count"`
	DegenerateGraph   bool `json:"degenerate_graph"`
}

// Run executes a full pass over a decoded image. Calibration errors are the
// only fatal failures; detection and graph degeneracies are reported through
// the result's status fields.
func Run(srcImg image.Image, calib calibration.Data, prof profile.Profile) (*Result, error) {
	gray, err := preprocess.GrayMatFromImage(srcImg)
	if err != nil {
		return nil, err
	}
	defer gray.Close()
	return RunMat(gray, calib, prof)
}

// RunMat executes a full pass over a single-channel 8-bit Mat.
func RunMat(gray gocv.Mat, calib calibration.Data, prof profile.Profile) (*Result, error) {
	if calib.UmPerPixel <= 0 {
		return nil, fmt.Errorf("%w: um/pixel must be positive, got %g", calibration.ErrInvalidCalibration, calib.UmPerPixel)
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	pre, err := preprocess.Enhance(gray, prof)
	if err != nil {
		return nil, err
	}
	defer pre.Close()

	detector, err := tubercle.ForMethod(prof.Method)
	if err != nil {
		return nil, err
	}
	ts, err := detector.Detect(pre, calib, prof)
	if err != nil {
		return nil, err
	}

	return Measure(ts, calib, prof)
}

// Measure derives the graph, statistics, hexagonalness and genus from an
// existing tubercle set. Callers that edit detections manually re-enter the
// pipeline here.
func Measure(ts []tubercle.Tubercle, calib calibration.Data, prof profile.Profile) (*Result, error) {
	if calib.UmPerPixel <= 0 {
		return nil, fmt.Errorf("%w: um/pixel must be positive, got %g", calibration.ErrInvalidCalibration, calib.UmPerPixel)
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Calibration:       calib,
		Profile:           prof,
		LowDetectionCount: len(ts) < prof.MinCount,
	}

	diameters := make([]float64, len(ts))
	for i, t := range ts {
		diameters[i] = t.DiameterUm
	}
	res.Diameter = neighbor.Summarize(diameters)

	g := neighbor.Build(ts, calib, prof.NeighborGraph, prof.MaxEdgeFactor)
	res.Graph = g
	res.Tubercles = ts // boundary flags were set during the build
	res.DegenerateGraph = g.Status == neighbor.StatusDegenerate

	policy, err := neighbor.ForSpacing(prof.Spacing)
	if err != nil {
		return nil, err
	}
	if !res.DegenerateGraph {
		res.Spacing = neighbor.Summarize(policy.Distances(ts, g, calib))
		res.Hexagonalness, res.HexValid = neighbor.ScoreHexagonalness(ts, g, prof.HexWeights)
	}

	if res.Spacing.Count > 0 && res.Diameter.Count > 0 {
		res.Genus = genus.Classify(res.Diameter.Mean, res.Diameter.Std, res.Spacing.Mean, res.Spacing.Std)
	}
	if res.LowDetectionCount || res.DegenerateGraph {
		// Statistics over too few tubercles stay mathematically valid but
		// are not reliable enough to call a genus with confidence.
		res.Genus.Confidence = genus.ConfidenceLow
	}
	return res, nil
}

// Batch runs independent pipeline passes over multiple images concurrently.
// Each pass is order-independent and shares no state; results and errors are
// index-aligned with the input.
func Batch(images []image.Image, calib calibration.Data, prof profile.Profile) ([]*Result, []error) {
	results := make([]*Result, len(images))
	errs := make([]error, len(images))

	var wg sync.WaitGroup
	for i := range images {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = Run(images[idx], calib, prof)
		}(i)
	}
	wg.Wait()
	return results, errs
}
