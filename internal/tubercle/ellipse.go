package tubercle

import (
	"fmt"
	"image"
	"math"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/profile"
	"scale-metrics/pkg/geometry"

	"gocv.io/x/gocv"
)

// ellipseDetector binarizes the image with an adaptive threshold, separates
// touching blobs with watershed segmentation, and fits an ellipse to each
// resulting region.
type ellipseDetector struct{}

func (ellipseDetector) Detect(pre gocv.Mat, calib calibration.Data, p profile.Profile) ([]Tubercle, error) {
	if pre.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	maxRadiusPx := calib.UmToPx(p.MaxDiameterUm) / 2

	bin := adaptiveBinarize(pre, maxRadiusPx)
	defer bin.Close()

	markers, numRegions := watershedRegions(pre, bin)
	defer markers.Close()

	var cands []Tubercle
	for label := 2; label < numRegions+2; label++ {
		t, ok := fitRegionEllipse(markers, label)
		if ok {
			cands = append(cands, t)
		}
	}

	cands = postFilter(cands, calib, p)
	cands = suppressOverlaps(cands, p.Overlap)
	return assignIDs(cands), nil
}

// adaptiveBinarize thresholds against the local neighborhood mean so uneven
// illumination across the micrograph does not split the field, then opens
// the mask to drop single-pixel noise.
func adaptiveBinarize(pre gocv.Mat, maxRadiusPx float64) gocv.Mat {
	blockSize := int(maxRadiusPx)*2 + 1
	if blockSize < 11 {
		blockSize = 11
	}
	if blockSize%2 == 0 {
		blockSize++
	}

	bin := gocv.NewMat()
	gocv.AdaptiveThreshold(pre, &bin, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, blockSize, -2)

	openKernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 3, Y: 3})
	defer openKernel.Close()
	gocv.MorphologyEx(bin, &bin, gocv.MorphOpen, openKernel)

	return bin
}

// watershedRegions splits touching blobs. Distance-transform maxima seed the
// markers; pixels that are bright but not certain foreground form the
// unknown zone the watershed floods. Returns the 32-bit marker image and the
// number of seeded regions (labels 2..numRegions+1 after the shift below).
func watershedRegions(pre, bin gocv.Mat) (gocv.Mat, int) {
	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(bin, &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	_, maxVal, _, _ := gocv.MinMaxLoc(dist)

	sureFg32 := gocv.NewMat()
	defer sureFg32.Close()
	gocv.Threshold(dist, &sureFg32, maxVal*0.4, 255, gocv.ThresholdBinary)

	sureFg := gocv.NewMat()
	defer sureFg.Close()
	sureFg32.ConvertTo(&sureFg, gocv.MatTypeCV8U)

	markers := gocv.NewMat()
	numRegions := gocv.ConnectedComponents(sureFg, &markers)

	// Shift labels so the watershed treats 0 as unknown: background becomes 1,
	// seeds become 2..n+1, bright-but-uncertain pixels become 0.
	rows, cols := markers.Rows(), markers.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if bin.GetUCharAt(y, x) > 0 && sureFg.GetUCharAt(y, x) == 0 {
				markers.SetIntAt(y, x, 0)
			} else {
				markers.SetIntAt(y, x, markers.GetIntAt(y, x)+1)
			}
		}
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(pre, &bgr, gocv.ColorGrayToBGR)
	gocv.Watershed(bgr, &markers)

	return markers, numRegions - 1
}

// fitRegionEllipse extracts one watershed region, fits an ellipse to its
// contour and derives the equivalent diameter and circularity.
func fitRegionEllipse(markers gocv.Mat, label int) (Tubercle, bool) {
	rows, cols := markers.Rows(), markers.Cols()
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	defer mask.Close()

	count := 0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if int(markers.GetIntAt(y, x)) == label {
				mask.SetUCharAt(y, x, 255)
				count++
			}
		}
	}
	if count < 5 {
		return Tubercle{}, false
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()
	if contours.Size() == 0 {
		return Tubercle{}, false
	}

	largest := 0
	largestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > largestArea {
			largestArea = a
			largest = i
		}
	}
	contour := contours.At(largest)
	if contour.Size() < 5 || largestArea <= 0 {
		return Tubercle{}, false
	}

	perimeter := gocv.ArcLength(contour, true)
	if perimeter <= 0 {
		return Tubercle{}, false
	}
	circ := 4 * math.Pi * largestArea / (perimeter * perimeter)
	if circ > 1 {
		circ = 1
	}

	rr := gocv.FitEllipse(contour)
	major := math.Max(float64(rr.Width), float64(rr.Height))
	minor := math.Min(float64(rr.Width), float64(rr.Height))
	if major <= 0 {
		return Tubercle{}, false
	}

	return Tubercle{
		Center:      geometry.Point2D{X: float64(rr.Center.X), Y: float64(rr.Center.Y)},
		DiameterPx:  2 * math.Sqrt(largestArea/math.Pi), // equivalent diameter
		AreaPx:      largestArea,
		Circularity: circ,
		Ellipse: &Ellipse{
			MajorPx:      major,
			MinorPx:      minor,
			AngleDeg:     rr.Angle,
			Eccentricity: eccentricity(major, minor),
		},
		Source:   SourceExtracted,
		Response: largestArea,
	}, true
}

// eccentricity derives ellipse eccentricity from axis lengths.
func eccentricity(major, minor float64) float64 {
	if major <= 0 || minor > major {
		return 0
	}
	ratio := minor / major
	return math.Sqrt(1 - ratio*ratio)
}

// refineEllipses re-fits a local ellipse to each accepted blob without
// changing set membership. The ellipse is fitted to the mask contour that
// encloses the blob center.
func refineEllipses(ts []Tubercle, mask gocv.Mat) {
	if len(ts) == 0 {
		return
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	for i := range ts {
		cx, cy := ts[i].Center.X, ts[i].Center.Y
		for c := 0; c < contours.Size(); c++ {
			contour := contours.At(c)
			if contour.Size() < 5 {
				continue
			}
			rect := gocv.BoundingRect(contour)
			if cx < float64(rect.Min.X) || cx > float64(rect.Max.X) ||
				cy < float64(rect.Min.Y) || cy > float64(rect.Max.Y) {
				continue
			}
			// Reject containing contours far larger than the blob itself,
			// e.g. a merged bright field.
			if float64(rect.Dx()) > ts[i].DiameterPx*3 || float64(rect.Dy()) > ts[i].DiameterPx*3 {
				continue
			}

			rr := gocv.FitEllipse(contour)
			major := math.Max(float64(rr.Width), float64(rr.Height))
			minor := math.Min(float64(rr.Width), float64(rr.Height))
			if major <= 0 {
				continue
			}
			ts[i].Ellipse = &Ellipse{
				MajorPx:      major,
				MinorPx:      minor,
				AngleDeg:     rr.Angle,
				Eccentricity: eccentricity(major, minor),
			}
			break
		}
	}
}
