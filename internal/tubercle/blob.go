package tubercle

import (
	"fmt"
	"image"
	"math"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/preprocess"
	"scale-metrics/internal/profile"
	"scale-metrics/pkg/geometry"

	"gocv.io/x/gocv"
)

// numScales is the number of sigma steps spanning the configured diameter
// range in scale space.
const numScales = 8

// logDetector finds bright blobs as scale-space maxima of the negated,
// sigma-normalized Laplacian of Gaussian.
type logDetector struct{}

func (logDetector) Detect(pre gocv.Mat, calib calibration.Data, p profile.Profile) ([]Tubercle, error) {
	return detectScaleSpace(pre, calib, p, false)
}

// dogDetector approximates the Laplacian with differences of successive
// Gaussian levels. Less accurate than LoG, roughly 2x faster.
type dogDetector struct{}

func (dogDetector) Detect(pre gocv.Mat, calib calibration.Data, p profile.Profile) ([]Tubercle, error) {
	return detectScaleSpace(pre, calib, p, true)
}

// sigmaLevels derives the scale-space sigmas from the diameter bounds and the
// calibration: sigma = diameter_px / 4, log-spaced across the range.
func sigmaLevels(calib calibration.Data, p profile.Profile) []float64 {
	sigmaMin := calib.UmToPx(p.MinDiameterUm) / 4
	sigmaMax := calib.UmToPx(p.MaxDiameterUm) / 4
	if sigmaMin < 1 {
		sigmaMin = 1
	}
	if sigmaMax <= sigmaMin {
		return []float64{sigmaMin}
	}

	k := math.Pow(sigmaMax/sigmaMin, 1.0/float64(numScales-1))
	sigmas := make([]float64, numScales)
	for i := range sigmas {
		sigmas[i] = sigmaMin * math.Pow(k, float64(i))
	}
	return sigmas
}

// detectScaleSpace runs the shared LoG/DoG pipeline: build a normalized
// response stack, find maxima across space and scale, suppress overlaps,
// measure each surviving blob against the binarized image, then apply the
// common diameter/circularity post-filter.
func detectScaleSpace(pre gocv.Mat, calib calibration.Data, p profile.Profile, dog bool) ([]Tubercle, error) {
	if pre.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	f32 := gocv.NewMat()
	defer f32.Close()
	pre.ConvertTo(&f32, gocv.MatTypeCV32F)
	f32.MultiplyFloat(1.0 / 255.0)

	sigmas := sigmaLevels(calib, p)
	responses := make([]gocv.Mat, len(sigmas))
	if dog {
		buildDoGStack(f32, sigmas, responses)
	} else {
		buildLoGStack(f32, sigmas, responses)
	}
	defer func() {
		for i := range responses {
			responses[i].Close()
		}
	}()

	cands := findScaleSpacePeaks(responses, sigmas, p.Threshold)
	cands = suppressOverlaps(cands, p.Overlap)

	mask := preprocess.BrightMask(pre)
	defer mask.Close()
	for i := range cands {
		area, circ := measureBlob(mask, cands[i].Center, cands[i].RadiusPx())
		cands[i].AreaPx = area
		cands[i].Circularity = circ
	}

	kept := postFilter(cands, calib, p)
	if p.RefineEllipse {
		refineEllipses(kept, mask)
	}
	return assignIDs(kept), nil
}

// buildLoGStack fills responses with -sigma^2 * Laplacian(G_sigma * img) for
// each sigma, so bright round blobs produce positive peaks.
func buildLoGStack(f32 gocv.Mat, sigmas []float64, responses []gocv.Mat) {
	for i, sigma := range sigmas {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(f32, &blurred, image.Point{}, sigma, sigma, gocv.BorderDefault)

		lap := gocv.NewMat()
		gocv.Laplacian(blurred, &lap, gocv.MatTypeCV32F, 3, 1, 0, gocv.BorderDefault)
		blurred.Close()

		lap.MultiplyFloat(float32(-sigma * sigma))
		responses[i] = lap
	}
}

// buildDoGStack fills responses with normalized differences of successive
// Gaussian levels, an approximation of the scale-normalized Laplacian.
func buildDoGStack(f32 gocv.Mat, sigmas []float64, responses []gocv.Mat) {
	blurs := make([]gocv.Mat, len(sigmas)+1)
	for i, sigma := range sigmas {
		blurs[i] = gocv.NewMat()
		gocv.GaussianBlur(f32, &blurs[i], image.Point{}, sigma, sigma, gocv.BorderDefault)
	}
	// One level past the top of the range for the final difference.
	k := 1.6
	if len(sigmas) > 1 {
		k = sigmas[1] / sigmas[0]
	}
	topSigma := sigmas[len(sigmas)-1] * k
	blurs[len(sigmas)] = gocv.NewMat()
	gocv.GaussianBlur(f32, &blurs[len(sigmas)], image.Point{}, topSigma, topSigma, gocv.BorderDefault)

	for i := range sigmas {
		diff := gocv.NewMat()
		gocv.Subtract(blurs[i], blurs[i+1], &diff)
		diff.MultiplyFloat(float32(1.0 / (k - 1)))
		responses[i] = diff
	}
	for i := range blurs {
		blurs[i].Close()
	}
}

// findScaleSpacePeaks scans each response level for pixels that are maximal
// in their spatial neighborhood (dilate-equality, as in a distance-transform
// peak scan) and not exceeded by the same pixel at adjacent scales.
func findScaleSpacePeaks(responses []gocv.Mat, sigmas []float64, threshold float64) []Tubercle {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	var cands []Tubercle
	for s, resp := range responses {
		dilated := gocv.NewMat()
		gocv.Dilate(resp, &dilated, kernel)

		rows, cols := resp.Rows(), resp.Cols()
		margin := int(2*sigmas[s]) + 1
		thr := float32(threshold)

		for y := margin; y < rows-margin; y++ {
			for x := margin; x < cols-margin; x++ {
				val := resp.GetFloatAt(y, x)
				if val < thr {
					continue
				}
				// Spatial maximum: value equals the dilated value.
				if val < dilated.GetFloatAt(y, x) {
					continue
				}
				// Scale maximum against adjacent levels.
				if s > 0 && responses[s-1].GetFloatAt(y, x) > val {
					continue
				}
				if s < len(responses)-1 && responses[s+1].GetFloatAt(y, x) > val {
					continue
				}
				cands = append(cands, Tubercle{
					Center:     geometry.Point2D{X: float64(x), Y: float64(y)},
					DiameterPx: 4 * sigmas[s],
					Source:     SourceExtracted,
					Response:   float64(val),
				})
			}
		}
		dilated.Close()
	}
	return cands
}
