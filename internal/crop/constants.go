// Package crop computes the region of interest inside a source frame.
package crop

// Fraction bounds for a crop region
const (
	MinFraction = 0.10
	MaxFraction = 1.0
)
