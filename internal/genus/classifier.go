// Package genus maps aggregate tubercle statistics to a reference-range
// lookup table of ganoid genera.
package genus

import (
	"sort"
)

// Confidence grades a classification.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Range is a closed interval in micrometers.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// overlaps reports interval overlap with [lo, hi].
func (r Range) overlaps(lo, hi float64) bool {
	return lo <= r.Max && hi >= r.Min
}

// contains reports strict containment of [lo, hi] inside the range.
func (r Range) contains(lo, hi float64) bool {
	return lo >= r.Min && hi <= r.Max
}

// Reference holds the published tubercle measurements for one genus.
type Reference struct {
	Genus      string `json:"genus"`
	DiameterUm Range  `json:"diameter_um"`
	SpacingUm  Range  `json:"spacing_um"`
}

// referenceTable is static data; swapping literature values requires no code
// change elsewhere.
var referenceTable = []Reference{
	{Genus: "Erpetoichthys", DiameterUm: Range{0.8, 1.8}, SpacingUm: Range{1.0, 2.2}},
	{Genus: "Polypterus", DiameterUm: Range{1.2, 2.6}, SpacingUm: Range{1.5, 3.2}},
	{Genus: "Lepisosteus", DiameterUm: Range{2.2, 4.5}, SpacingUm: Range{2.8, 5.5}},
	{Genus: "Atractosteus", DiameterUm: Range{3.8, 6.5}, SpacingUm: Range{4.5, 8.0}},
}

// References returns the reference table.
func References() []Reference {
	out := make([]Reference, len(referenceTable))
	copy(out, referenceTable)
	return out
}

// Match is one genus whose reference ranges overlap the measurement.
type Match struct {
	Genus string `json:"genus"`
	// Number of axes (0-2) whose measured interval lies strictly inside the
	// reference range rather than merely overlapping it.
	StrictAxes int `json:"strict_axes"`
}

// Result is the classification outcome.
type Result struct {
	Genus      string     `json:"genus"` // empty when nothing matches
	Confidence Confidence `json:"confidence"`
	Matches    []Match    `json:"matches,omitempty"`
}

// Classify compares the measured diameter and spacing (mean +/- std, both
// micrometers) against the reference table. A genus matches if both measured
// intervals overlap its ranges: interval overlap rather than point
// containment, since measurements carry their own spread. Confidence is high
// when a single genus matches with both axes strictly inside its ranges,
// medium for a single match with one strict axis, low otherwise (including
// ambiguous multi-genus matches).
func Classify(meanDiameterUm, stdDiameterUm, meanSpacingUm, stdSpacingUm float64) Result {
	dLo, dHi := meanDiameterUm-stdDiameterUm, meanDiameterUm+stdDiameterUm
	sLo, sHi := meanSpacingUm-stdSpacingUm, meanSpacingUm+stdSpacingUm

	var matches []Match
	for _, ref := range referenceTable {
		if !ref.DiameterUm.overlaps(dLo, dHi) || !ref.SpacingUm.overlaps(sLo, sHi) {
			continue
		}
		strict := 0
		if ref.DiameterUm.contains(dLo, dHi) {
			strict++
		}
		if ref.SpacingUm.contains(sLo, sHi) {
			strict++
		}
		matches = append(matches, Match{Genus: ref.Genus, StrictAxes: strict})
	}

	if len(matches) == 0 {
		return Result{Confidence: ConfidenceLow}
	}

	// Best match first: most strict axes, then table order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].StrictAxes > matches[j].StrictAxes
	})

	res := Result{Genus: matches[0].Genus, Matches: matches}
	switch {
	case len(matches) > 1:
		res.Confidence = ConfidenceLow
	case matches[0].StrictAxes == 2:
		res.Confidence = ConfidenceHigh
	case matches[0].StrictAxes == 1:
		res.Confidence = ConfidenceMedium
	default:
		res.Confidence = ConfidenceLow
	}
	return res
}
