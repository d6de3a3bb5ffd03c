// Package dedup decides whether a thumbnail shows new content.
package dedup

// Default thresholds
const (
	// Minimum perceptual similarity treated as the same content
	DefaultPHashMin = 0.95

	// Stage names reported in results and to observers
	StageBytes      = "bytes"
	StageAverage    = "average"
	StagePerceptual = "perceptual"
)
