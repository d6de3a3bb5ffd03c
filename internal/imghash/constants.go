// Package imghash computes average and DCT perceptual hashes of thumbnails.
package imghash

// Hash geometry
const (
	// Average hash grid edge; the hash has AverageSize² bits
	AverageSize = 8

	// Perceptual hash works on a PerceptualMatrix² grayscale reduction and keeps
	// the top-left PerceptualBlock² DCT coefficients
	PerceptualMatrix = 32
	PerceptualBlock  = 8
	PerceptualBits   = PerceptualBlock * PerceptualBlock

	// Coefficients within this distance of zero are treated as zero so that
	// mathematically vanishing terms do not pick up rounding noise
	coefficientEpsilon = 1e-9
)
