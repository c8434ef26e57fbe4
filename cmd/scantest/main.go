// Command scantest runs the tubercle measurement pipeline on a scale
// micrograph and prints the results.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"scale-metrics/internal/calibration"
	"scale-metrics/internal/pipeline"
	"scale-metrics/internal/profile"
	"scale-metrics/internal/tubercle"
	"scale-metrics/internal/version"
	"scale-metrics/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

func main() {
	imagePath := flag.String("image", "", "Path to micrograph (TIFF, PNG, or JPEG)")
	umPerPixel := flag.Float64("um-per-pixel", 0, "Calibration in um/pixel (0 = built-in estimate)")
	preset := flag.String("profile", "default", "Detection profile preset name")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scantest %s (%s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}
	if *imagePath == "" {
		fmt.Println("Usage: scantest -image <path> [-um-per-pixel 0.33] [-profile default]")
		os.Exit(1)
	}

	prof, ok := profile.Get(*preset)
	if !ok {
		log.Fatalf("Unknown profile %q (available: %v)", *preset, profile.List())
	}

	var calib calibration.Data
	if *umPerPixel > 0 {
		var err error
		calib, err = calibration.FromUmPerPixel(*umPerPixel)
		if err != nil {
			log.Fatalf("Invalid calibration: %v", err)
		}
	} else {
		calib = calibration.Estimated()
		log.Printf("No calibration supplied; using estimate of %.2f um/pixel; absolute values are unreliable", calib.UmPerPixel)
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		log.Fatalf("Failed to open image: %v", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		log.Fatalf("Failed to decode image: %v", err)
	}
	bounds := img.Bounds()
	fmt.Printf("Loaded %s image: %dx%d pixels, %.3f um/pixel (%s)\n",
		format, bounds.Dx(), bounds.Dy(), calib.UmPerPixel, calib.Method)

	result, err := pipeline.Run(img, calib, prof)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Printf("\nDetected %d tubercles (%s method):\n", len(result.Tubercles), prof.Method)
	fmt.Printf("%-6s %10s %10s %10s %8s %10s\n", "ID", "X", "Y", "Diam(um)", "Circ", "Boundary")
	for _, t := range result.Tubercles {
		fmt.Printf("%-6d %10.1f %10.1f %10.2f %8.2f %10v\n",
			t.ID, t.Center.X, t.Center.Y, t.DiameterUm, t.Circularity, t.IsBoundary)
	}

	if len(result.Tubercles) > 0 {
		field := geometry.BoundingBox(tubercle.Centroids(result.Tubercles))
		fmt.Printf("\nField extent: %.1f x %.1f um\n",
			calib.PxToUm(field.Width), calib.PxToUm(field.Height))
	}

	fmt.Printf("Neighbor graph (%s): %d edges, status %s\n",
		result.Graph.Type, len(result.Graph.Edges), result.Graph.Status)
	fmt.Printf("Diameter: %.2f +/- %.2f um (n=%d)\n", result.Diameter.Mean, result.Diameter.Std, result.Diameter.Count)
	fmt.Printf("Spacing:  %.2f +/- %.2f um (n=%d)\n", result.Spacing.Mean, result.Spacing.Std, result.Spacing.Count)

	if result.HexValid {
		fmt.Printf("Hexagonalness: %.3f (spacing %.2f, degree %.2f, edge ratio %.2f)\n",
			result.Hexagonalness.Score, result.Hexagonalness.SpacingUniformity,
			result.Hexagonalness.DegreeScore, result.Hexagonalness.EdgeRatioScore)
	} else {
		fmt.Println("Hexagonalness: insufficient data")
	}

	if result.Genus.Genus != "" {
		fmt.Printf("Genus: %s (confidence %s)\n", result.Genus.Genus, result.Genus.Confidence)
	} else {
		fmt.Println("Genus: no reference match")
	}
	if result.LowDetectionCount {
		fmt.Println("Warning: low detection count, statistics are unreliable")
	}
	if result.DegenerateGraph {
		fmt.Println("Warning: fewer than 3 non-collinear centroids, spacing undefined")
	}
}
