// Package replay runs still images through the capture engine as if they
// were consecutive ticks of a live source.
package replay

import (
	"context"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Source serves whichever image was loaded last.
type Source struct {
	mu  sync.Mutex
	img image.Image
}

func (s *Source) set(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

func (s *Source) CurrentFrame(context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, apperrors.New(apperrors.SourceUnavailable, "no image loaded")
	}
	return s.img, nil
}

func (s *Source) IsBuffering(context.Context) bool     { return false }
func (s *Source) IsPausedOrEnded(context.Context) bool { return false }

func (s *Source) Dimensions(context.Context) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Summary reports what a replay kept.
type Summary struct {
	SessionID string
	Total     int
	Retained  int
	Skipped   []string
}

// Run feeds files through an engine built from cfg and th, one tick per
// file, then stops the session so sink receives the retained frames.
// progress is called after each file.
func Run(ctx context.Context, files []string, cfg capture.Config, th dedup.Thresholds, sink capture.Sink, progress func(file string)) (Summary, error) {
	pipeline, err := dedup.NewPipeline(th)
	if err != nil {
		return Summary{}, err
	}

	src := &Source{}
	clock := capture.NewManualClock(epoch)
	located := capture.LocatorFunc(func(context.Context) (capture.Source, error) { return src, nil })
	opts := []capture.Option{capture.WithClock(clock)}
	if sink != nil {
		opts = append(opts, capture.WithSink(sink))
	}
	eng, err := capture.New(cfg, pipeline, located, opts...)
	if err != nil {
		return Summary{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	sum := Summary{SessionID: eng.Snapshot().ID, Total: len(files)}
	started := false
	for _, f := range files {
		img, err := load(f)
		if err != nil {
			sum.Skipped = append(sum.Skipped, f)
		} else {
			src.set(img)
			if !started {
				// the first search poll runs inside Start and attaches src
				if err := eng.Start(ctx); err != nil {
					return sum, err
				}
				started = true
			}
			clock.Advance(cfg.CaptureInterval)
			// Start is a no-op while capturing and returns once the tick is done
			if err := eng.Start(ctx); err != nil {
				return sum, err
			}
		}
		if progress != nil {
			progress(f)
		}
	}

	sum.Retained = eng.Snapshot().Frames
	if err := eng.Stop(ctx); err != nil {
		return sum, err
	}
	return sum, nil
}

func load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
