// Package calibration provides pixel-to-micrometer conversion for a single
// micrograph or session.
package calibration

import (
	"errors"
	"fmt"
)

// ErrInvalidCalibration reports a non-positive scale value. Calibration errors
// are fatal to a run: no downstream measurement is meaningful without valid
// units.
var ErrInvalidCalibration = errors.New("invalid calibration")

// EstimatedUmPerPixel is the fallback scale used when no calibration input is
// available. It corresponds to a nominal 1000x micrograph and must be treated
// as an estimate, never a measurement.
const EstimatedUmPerPixel = 0.33

// Method indicates how the calibration value was obtained.
type Method int

const (
	// MethodManual indicates a directly supplied um-per-pixel value.
	MethodManual Method = iota
	// MethodScaleBar indicates the value was measured from a scale bar.
	MethodScaleBar
	// MethodEstimated indicates the built-in magnification estimate.
	MethodEstimated
)

func (m Method) String() string {
	switch m {
	case MethodManual:
		return "manual"
	case MethodScaleBar:
		return "scale-bar"
	case MethodEstimated:
		return "estimated"
	default:
		return "unknown"
	}
}

// Data holds the scale factor for one image. Immutable once applied.
type Data struct {
	UmPerPixel float64 `json:"um_per_pixel"`
	Method     Method  `json:"method"`
}

// FromUmPerPixel creates a calibration from a directly measured scale factor.
func FromUmPerPixel(umPerPixel float64) (Data, error) {
	if umPerPixel <= 0 {
		return Data{}, fmt.Errorf("%w: um/pixel must be positive, got %g", ErrInvalidCalibration, umPerPixel)
	}
	return Data{UmPerPixel: umPerPixel, Method: MethodManual}, nil
}

// FromScaleBar creates a calibration from a scale bar of known physical length
// measured in the image.
func FromScaleBar(lengthUm, lengthPx float64) (Data, error) {
	if lengthUm <= 0 {
		return Data{}, fmt.Errorf("%w: scale bar length must be positive, got %g um", ErrInvalidCalibration, lengthUm)
	}
	if lengthPx <= 0 {
		return Data{}, fmt.Errorf("%w: scale bar pixel length must be positive, got %g px", ErrInvalidCalibration, lengthPx)
	}
	return Data{UmPerPixel: lengthUm / lengthPx, Method: MethodScaleBar}, nil
}

// Estimated returns the fallback calibration for uncalibrated images.
// Callers must check IsEstimate before reporting absolute measurements.
func Estimated() Data {
	return Data{UmPerPixel: EstimatedUmPerPixel, Method: MethodEstimated}
}

// IsEstimate reports whether the scale is an estimate rather than a measurement.
func (d Data) IsEstimate() bool {
	return d.Method == MethodEstimated
}

// PxToUm converts a pixel length to micrometers.
func (d Data) PxToUm(px float64) float64 {
	return px * d.UmPerPixel
}

// UmToPx converts a micrometer length to pixels.
func (d Data) UmToPx(um float64) float64 {
	return um / d.UmPerPixel
}
