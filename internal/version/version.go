// Package version carries the build metadata stamped into the scale-metrics
// command binaries.
package version

// Set at build time via -ldflags; defaults identify a local dev build.
var (
	// Version is the semantic version of the measurement pipeline.
	Version = "0.1.0"

	// BuildTime is the UTC time the binary was built.
	BuildTime = "unknown"

	// GitCommit is the git commit the binary was built from.
	GitCommit = "unknown"
)
