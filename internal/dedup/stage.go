package dedup

import (
	"github.com/GriffinCanCode/slidecapture/internal/imghash"
)

// Stage is one comparison step. It returns the verdict and, when it
// measured one, the similarity in [0, 1].
type Stage interface {
	Name() string
	Evaluate(c *Candidate, base Baseline) (Verdict, float64, error)
}

// BytesStage flags byte-identical thumbnails without hashing anything.
type BytesStage struct{}

func (BytesStage) Name() string { return StageBytes }

func (BytesStage) Evaluate(c *Candidate, base Baseline) (Verdict, float64, error) {
	if base.Thumbnail != nil && c.Thumbnail().Equal(base.Thumbnail) {
		return Duplicate, 1, nil
	}
	return Inconclusive, 0, nil
}

// AverageStage flags thumbnails whose average hash matches exactly.
type AverageStage struct{}

func (AverageStage) Name() string { return StageAverage }

func (AverageStage) Evaluate(c *Candidate, base Baseline) (Verdict, float64, error) {
	h, err := c.Average()
	if err != nil {
		return Inconclusive, 0, err
	}
	if base.Average == nil {
		return Inconclusive, 0, nil
	}
	sim, err := imghash.Similarity(h, base.Average)
	if err != nil {
		return Inconclusive, 0, err
	}
	if sim == 1 {
		return Duplicate, sim, nil
	}
	return Inconclusive, sim, nil
}

// PerceptualStage is decisive: at or above Min is a duplicate.
type PerceptualStage struct {
	Min float64
}

func (PerceptualStage) Name() string { return StagePerceptual }

func (s PerceptualStage) Evaluate(c *Candidate, base Baseline) (Verdict, float64, error) {
	h, err := c.Perceptual()
	if err != nil {
		return Inconclusive, 0, err
	}
	if base.Perceptual == nil {
		return Distinct, 0, nil
	}
	sim, err := imghash.PerceptualSimilarity(h, base.Perceptual)
	if err != nil {
		return Inconclusive, 0, err
	}
	if sim >= s.Min {
		return Duplicate, sim, nil
	}
	return Distinct, sim, nil
}
