package dedup

import (
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/imghash"
	"github.com/GriffinCanCode/slidecapture/internal/raster"
)

type countingHasher struct {
	inner      ImageHasher
	average    int
	perceptual int
}

func (h *countingHasher) Average(t *raster.Thumbnail) (*imghash.Hash, error) {
	h.average++
	return h.inner.Average(t)
}

func (h *countingHasher) Perceptual(t *raster.Thumbnail) (*imghash.Hash, error) {
	h.perceptual++
	return h.inner.Perceptual(t)
}

func slide(seed uint64) *raster.Thumbnail {
	rng := rand.New(rand.NewPCG(seed, 99))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			v := uint8(rng.IntN(256))
			for y := by * 8; y < by*8+8; y++ {
				for x := bx * 8; x < bx*8+8; x++ {
					img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
				}
			}
		}
	}
	return raster.NewThumbnail(img)
}

// noisy re-renders t with a few channel values nudged, like a lossy decode.
func noisy(t *raster.Thumbnail, seed uint64) *raster.Thumbnail {
	rng := rand.New(rand.NewPCG(seed, 3))
	c := t.Clone()
	pix := c.Image().Pix
	for k := 0; k < 6; k++ {
		i := rng.IntN(len(pix)/4) * 4
		ch := rng.IntN(3)
		if pix[i+ch] < 128 {
			pix[i+ch]++
		} else {
			pix[i+ch]--
		}
	}
	return c
}

func signature(t *testing.T, p *Pipeline, th *raster.Thumbnail) Baseline {
	t.Helper()
	res, err := p.Classify(th, Baseline{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return res.Signature
}

func TestByteIdenticalSkipsHashing(t *testing.T) {
	h := &countingHasher{}
	p, err := NewPipeline(DefaultThresholds())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	base := signature(t, p, slide(1))

	p, _ = NewPipeline(DefaultThresholds(), WithHasher(h))
	res, err := p.Classify(slide(1), base)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Verdict != Duplicate || res.Stage != StageBytes {
		t.Errorf("result = %v via %q, want duplicate via bytes", res.Verdict, res.Stage)
	}
	if h.average != 0 || h.perceptual != 0 {
		t.Errorf("hash calls = %d average, %d perceptual, want none", h.average, h.perceptual)
	}
}

func TestFirstFrameIsDistinct(t *testing.T) {
	p, _ := NewPipeline(DefaultThresholds())
	res, err := p.Classify(slide(2), Baseline{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Verdict != Distinct || res.Stage != StagePerceptual {
		t.Errorf("result = %v via %q", res.Verdict, res.Stage)
	}
	sig := res.Signature
	if sig.Thumbnail == nil || sig.Average == nil || sig.Perceptual == nil {
		t.Fatalf("incomplete signature: %+v", sig)
	}
	if sig.Perceptual.Len() != imghash.PerceptualBits || sig.Average.Len() != imghash.AverageSize*imghash.AverageSize {
		t.Errorf("signature lengths = %d, %d", sig.Average.Len(), sig.Perceptual.Len())
	}
}

func TestNoisyStaticContentRetainsOnce(t *testing.T) {
	p, _ := NewPipeline(DefaultThresholds())
	still := slide(3)

	var base Baseline
	retained := 0
	for tick := 0; tick < 10; tick++ {
		res, err := p.Classify(noisy(still, uint64(tick)), base)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if res.Verdict == Distinct {
			retained++
			base = res.Signature
		}
	}
	if retained > 1 {
		t.Errorf("retained %d frames of static content, want at most 1", retained)
	}
}

func TestChangedContentIsDistinct(t *testing.T) {
	p, _ := NewPipeline(DefaultThresholds())
	base := signature(t, p, slide(4))

	res, err := p.Classify(slide(5), base)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Verdict != Distinct {
		t.Errorf("verdict = %v, want distinct (similarity %.3f)", res.Verdict, res.Similarity)
	}
	if res.Signature.Perceptual == nil {
		t.Error("distinct result should carry its hashes")
	}
}

func TestDuplicateLeavesSignatureEmpty(t *testing.T) {
	p, _ := NewPipeline(DefaultThresholds())
	base := signature(t, p, slide(6))

	res, _ := p.Classify(noisy(slide(6), 1), base)
	if res.Verdict != Duplicate {
		t.Fatalf("verdict = %v, want duplicate", res.Verdict)
	}
	if !res.Signature.Empty() {
		t.Error("duplicate should not produce a new baseline")
	}
}

func TestStageOrderAndObserver(t *testing.T) {
	var seen []string
	p, _ := NewPipeline(DefaultThresholds(), WithObserver(func(stage string, _ Verdict) {
		seen = append(seen, stage)
	}))
	base := signature(t, p, slide(7))
	seen = nil

	if _, err := p.Classify(slide(8), base); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{StageBytes, StageAverage, StagePerceptual}
	if len(seen) != len(want) {
		t.Fatalf("stages = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestDisabledStages(t *testing.T) {
	var seen []string
	th := Thresholds{PHashMin: 0.9}
	p, err := NewPipeline(th, WithObserver(func(stage string, _ Verdict) { seen = append(seen, stage) }))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	base := signature(t, p, slide(9))
	seen = nil

	res, _ := p.Classify(slide(9), base)
	if res.Verdict != Duplicate || res.Stage != StagePerceptual {
		t.Errorf("result = %v via %q", res.Verdict, res.Stage)
	}
	if len(seen) != 1 {
		t.Errorf("stages run = %v, want perceptual only", seen)
	}
}

type stubStage struct{ v Verdict }

func (stubStage) Name() string { return "stub" }

func (s stubStage) Evaluate(*Candidate, Baseline) (Verdict, float64, error) { return s.v, 0, nil }

func TestAllInconclusiveIsDistinct(t *testing.T) {
	h := &countingHasher{}
	p, _ := NewPipeline(DefaultThresholds(), WithHasher(h), WithStages(stubStage{Inconclusive}, stubStage{Inconclusive}))

	res, err := p.Classify(slide(10), Baseline{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Verdict != Distinct || res.Stage != "" {
		t.Errorf("result = %v via %q, want distinct with no deciding stage", res.Verdict, res.Stage)
	}
	if h.average != 1 || h.perceptual != 1 {
		t.Errorf("skipped hashes should be filled in, got %d/%d calls", h.average, h.perceptual)
	}
}

func TestHashesComputedOnce(t *testing.T) {
	h := &countingHasher{}
	p, _ := NewPipeline(DefaultThresholds(), WithHasher(h))
	base := signature(t, p, slide(11))
	h.average, h.perceptual = 0, 0

	if _, err := p.Classify(slide(12), base); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if h.average != 1 || h.perceptual != 1 {
		t.Errorf("hash calls = %d/%d, want 1/1", h.average, h.perceptual)
	}
}

func TestLengthMismatchSurfaces(t *testing.T) {
	p, _ := NewPipeline(DefaultThresholds())
	small, _ := imghash.Average(slide(13), 4)

	_, err := p.Classify(slide(14), Baseline{Average: small})
	if !errors.Is(err, apperrors.ErrLengthMismatch) {
		t.Errorf("err = %v, want length mismatch", err)
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		min     float64
		wantErr bool
	}{
		{0.95, false},
		{1, false},
		{0, true},
		{-0.1, true},
		{1.5, true},
	}
	for _, tt := range tests {
		_, err := NewPipeline(Thresholds{PHashMin: tt.min})
		if (err != nil) != tt.wantErr {
			t.Errorf("PHashMin %v: err = %v, wantErr %v", tt.min, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, apperrors.ErrConfiguration) {
			t.Errorf("PHashMin %v: err = %v, want configuration error", tt.min, err)
		}
	}
}
