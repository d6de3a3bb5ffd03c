package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
)

// Source is a live visual surface the engine samples.
type Source interface {
	CurrentFrame(ctx context.Context) (image.Image, error)
	IsBuffering(ctx context.Context) bool
	IsPausedOrEnded(ctx context.Context) bool
	Dimensions(ctx context.Context) (int, int)
}

// Boxed is implemented by sources drawn inside a page so the crop can be
// highlighted over them.
type Boxed interface {
	Box(ctx context.Context) (crop.Box, error)
}

// Locator finds a usable Source. It returns a nil Source with no error while
// nothing suitable is present.
type Locator interface {
	Locate(ctx context.Context) (Source, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Source, error)

func (f LocatorFunc) Locate(ctx context.Context) (Source, error) { return f(ctx) }

// Sink receives the retained frames when a session stops.
type Sink interface {
	Finalize(ctx context.Context, sessionID string, frames []RetainedFrame) error
}

// Sinks fans a finalized session out to several sinks, in order.
type Sinks []Sink

func (s Sinks) Finalize(ctx context.Context, sessionID string, frames []RetainedFrame) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Finalize(ctx, sessionID, frames); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encoder serialises a retained frame.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// PNGEncoder stores frames losslessly.
type PNGEncoder struct{}

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

func (PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Observer hooks fire on the engine loop goroutine and must not block.
type Observer interface {
	StatusChanged(sessionID string, from, to Status)
	FrameRetained(sessionID string, index int, frame RetainedFrame, res dedup.Result)
	TickSkipped(sessionID string, reason string)
	RegionHighlighted(sessionID string, overlay crop.Overlay)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StatusChanged(string, Status, Status)                   {}
func (NopObserver) FrameRetained(string, int, RetainedFrame, dedup.Result) {}
func (NopObserver) TickSkipped(string, string)                             {}
func (NopObserver) RegionHighlighted(string, crop.Overlay)                 {}

type multiObserver []Observer

func (m multiObserver) StatusChanged(id string, from, to Status) {
	for _, o := range m {
		o.StatusChanged(id, from, to)
	}
}

func (m multiObserver) FrameRetained(id string, i int, f RetainedFrame, res dedup.Result) {
	for _, o := range m {
		o.FrameRetained(id, i, f, res)
	}
}

func (m multiObserver) TickSkipped(id string, reason string) {
	for _, o := range m {
		o.TickSkipped(id, reason)
	}
}

func (m multiObserver) RegionHighlighted(id string, ov crop.Overlay) {
	for _, o := range m {
		o.RegionHighlighted(id, ov)
	}
}
