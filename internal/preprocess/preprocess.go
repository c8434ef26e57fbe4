// Package preprocess conditions a raw micrograph so tubercles are locally
// brighter and sharper before detection.
package preprocess

import (
	"fmt"
	"image"

	"scale-metrics/internal/profile"

	"gocv.io/x/gocv"
)

// GrayMatFromImage converts a Go image.Image to a single-channel 8-bit Mat
// using the standard luma weights. The source image is never mutated.
func GrayMatFromImage(srcImg image.Image) (gocv.Mat, error) {
	bounds := srcImg.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := srcImg.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x, uint8((19595*r+38470*g+7471*b+1<<15)>>24))
		}
	}
	return mat, nil
}

// Enhance applies local contrast equalization (CLAHE) followed by an
// edge-preserving smoothing pass. The output is a new same-size intensity
// Mat; the input is left untouched. The caller owns the returned Mat.
func Enhance(gray gocv.Mat, p profile.Profile) (gocv.Mat, error) {
	if gray.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}
	if gray.Channels() != 1 {
		return gocv.Mat{}, fmt.Errorf("expected single-channel image, got %d channels", gray.Channels())
	}

	clip := p.CLAHEClipLimit
	if clip <= 0 {
		clip = 2.0
	}
	tile := p.CLAHETileSize
	if tile <= 0 {
		tile = 8
	}

	clahe := gocv.NewCLAHEWithParams(clip, image.Point{X: tile, Y: tile})
	defer clahe.Close()

	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	// Bilateral filter suppresses sensor noise while keeping the sharp
	// intensity step at the tubercle rim, unlike a plain Gaussian.
	d := p.SmoothDiameter
	if d <= 0 {
		d = 5
	}
	smoothed := gocv.NewMat()
	gocv.BilateralFilter(equalized, &smoothed, d, 50, 50)

	return smoothed, nil
}

// BrightMask binarizes a preprocessed image with Otsu's threshold. Used for
// circularity measurement of detected blobs.
func BrightMask(pre gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	gocv.Threshold(pre, &mask, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	return mask
}
