package dedup

import (
	"math"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/imghash"
	"github.com/GriffinCanCode/slidecapture/internal/raster"
)

// Verdict is a stage outcome.
type Verdict int

const (
	Inconclusive Verdict = iota
	Duplicate
	Distinct
)

func (v Verdict) String() string {
	switch v {
	case Duplicate:
		return "duplicate"
	case Distinct:
		return "distinct"
	default:
		return "inconclusive"
	}
}

// Thresholds configures which stages run and how strict they are.
type Thresholds struct {
	IdenticalBytes bool
	AverageExact   bool
	PHashMin       float64
}

// DefaultThresholds enables every stage with the 95% perceptual cut-off.
func DefaultThresholds() Thresholds {
	return Thresholds{IdenticalBytes: true, AverageExact: true, PHashMin: DefaultPHashMin}
}

// Validate rejects thresholds outside (0, 1].
func (t Thresholds) Validate() error {
	if math.IsNaN(t.PHashMin) || t.PHashMin <= 0 || t.PHashMin > 1 {
		return apperrors.Newf(apperrors.Configuration, "perceptual similarity threshold %v outside (0,1]", t.PHashMin).
			WithMetadata("field", "PHashMin")
	}
	return nil
}

// Baseline is the most recently retained frame's signature.
type Baseline struct {
	Thumbnail  *raster.Thumbnail
	Average    *imghash.Hash
	Perceptual *imghash.Hash
}

// Empty reports whether nothing has been retained yet.
func (b Baseline) Empty() bool {
	return b.Thumbnail == nil && b.Average == nil && b.Perceptual == nil
}

// Result is the outcome of one classification.
type Result struct {
	Verdict Verdict
	// Stage that decided, empty when every stage was inconclusive.
	Stage      string
	Similarity float64
	// Signature of the candidate, complete whenever Verdict is Distinct.
	Signature Baseline
}

// Hasher computes the two hash kinds. Swappable so callers can count work.
type Hasher interface {
	Average(t *raster.Thumbnail) (*imghash.Hash, error)
	Perceptual(t *raster.Thumbnail) (*imghash.Hash, error)
}

// ImageHasher is the production Hasher.
type ImageHasher struct {
	AverageSize int
}

func (h ImageHasher) Average(t *raster.Thumbnail) (*imghash.Hash, error) {
	n := h.AverageSize
	if n == 0 {
		n = imghash.AverageSize
	}
	return imghash.Average(t, n)
}

func (ImageHasher) Perceptual(t *raster.Thumbnail) (*imghash.Hash, error) {
	return imghash.Perceptual(t)
}

// Observer is notified after every stage evaluation.
type Observer func(stage string, v Verdict)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHasher replaces the hash implementation.
func WithHasher(h Hasher) Option { return func(p *Pipeline) { p.hasher = h } }

// WithObserver registers a stage observer.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithStages overrides the stage list built from the thresholds.
func WithStages(stages ...Stage) Option { return func(p *Pipeline) { p.stages = stages } }

// Pipeline runs stages in order until one is decisive.
type Pipeline struct {
	thresholds Thresholds
	stages     []Stage
	hasher     Hasher
	observer   Observer
}

// NewPipeline builds bytes, average and perceptual stages as the thresholds allow.
func NewPipeline(th Thresholds, opts ...Option) (*Pipeline, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{thresholds: th, hasher: ImageHasher{}}
	if th.IdenticalBytes {
		p.stages = append(p.stages, BytesStage{})
	}
	if th.AverageExact {
		p.stages = append(p.stages, AverageStage{})
	}
	p.stages = append(p.stages, PerceptualStage{Min: th.PHashMin})

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Thresholds returns the configuration the pipeline was built with.
func (p *Pipeline) Thresholds() Thresholds { return p.thresholds }

// Classify compares t against base. Errors are hashing failures or length
// mismatches; the caller should leave its state untouched.
func (p *Pipeline) Classify(t *raster.Thumbnail, base Baseline) (Result, error) {
	c := &Candidate{thumb: t, hasher: p.hasher}

	res := Result{Verdict: Distinct}
	for _, s := range p.stages {
		v, sim, err := s.Evaluate(c, base)
		if err != nil {
			return Result{}, apperrors.Wrapf(err, apperrors.CodeOf(err), "%s stage", s.Name())
		}
		if p.observer != nil {
			p.observer(s.Name(), v)
		}
		if v == Inconclusive {
			continue
		}
		res = Result{Verdict: v, Stage: s.Name(), Similarity: sim}
		break
	}

	if res.Verdict == Distinct {
		sig, err := c.complete()
		if err != nil {
			return Result{}, err
		}
		res.Signature = sig
	}
	return res, nil
}

// Candidate memoises the hashes of the thumbnail under test.
type Candidate struct {
	thumb      *raster.Thumbnail
	hasher     Hasher
	average    *imghash.Hash
	perceptual *imghash.Hash
}

// Thumbnail returns the thumbnail being classified.
func (c *Candidate) Thumbnail() *raster.Thumbnail { return c.thumb }

// Average returns the candidate's average hash, computing it once.
func (c *Candidate) Average() (*imghash.Hash, error) {
	if c.average == nil {
		h, err := c.hasher.Average(c.thumb)
		if err != nil {
			return nil, err
		}
		c.average = h
	}
	return c.average, nil
}

// Perceptual returns the candidate's perceptual hash, computing it once.
func (c *Candidate) Perceptual() (*imghash.Hash, error) {
	if c.perceptual == nil {
		h, err := c.hasher.Perceptual(c.thumb)
		if err != nil {
			return nil, err
		}
		c.perceptual = h
	}
	return c.perceptual, nil
}

func (c *Candidate) complete() (Baseline, error) {
	a, err := c.Average()
	if err != nil {
		return Baseline{}, err
	}
	ph, err := c.Perceptual()
	if err != nil {
		return Baseline{}, err
	}
	return Baseline{Thumbnail: c.thumb.Clone(), Average: a, Perceptual: ph}, nil
}
