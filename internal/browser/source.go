package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"log/slog"
	"strings"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/crop"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/resilience"
)

const pngDataURLPrefix = "data:image/png;base64,"

// Element describes the located element.
type Element struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Locator finds the slide surface in the page: the largest non-excluded
// canvas in the player's shadow root, else a ready video, else any video.
type Locator struct {
	page     Evaluator
	excluded []string
	breaker  *resilience.Breaker
}

// NewLocator builds a locator over page. Canvas ids ending in one of the
// excluded suffixes are skipped.
func NewLocator(page Evaluator, excluded []string) *Locator {
	lower := make([]string, len(excluded))
	for i, s := range excluded {
		lower[i] = strings.ToLower(s)
	}
	return &Locator{
		page:     page,
		excluded: lower,
		breaker:  resilience.New("grab", resilience.GrabConfig()),
	}
}

// OnGrabState reports when frame grabs start failing fast (open) and when
// they recover (closed).
func (l *Locator) OnGrabState(fn func(state string)) *Locator {
	l.breaker.WithHook(func(_, to resilience.State) { fn(to.String()) })
	return l
}

func (l *Locator) Locate(ctx context.Context) (capture.Source, error) {
	if err := l.breaker.Allow(); err != nil {
		return nil, nil
	}
	raw, err := l.page.Eval(ctx, locateJS, l.excluded)
	if err != nil {
		l.breaker.Failure()
		return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "locate element")
	}
	var el *Element
	if err := json.Unmarshal(raw, &el); err != nil {
		return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "decode locate result")
	}
	if el == nil {
		return nil, nil
	}
	slog.Debug("browser: located element", "kind", el.Kind, "id", el.ID)
	return &Source{page: l.page, breaker: l.breaker, Element: *el}, nil
}

// Source reads frames and playback state from the located element.
type Source struct {
	Element

	page    Evaluator
	breaker *resilience.Breaker
}

func (s *Source) CurrentFrame(ctx context.Context) (image.Image, error) {
	return resilience.ExecuteWithResult(s.breaker, func() (image.Image, error) {
		raw, err := s.page.Eval(ctx, frameJS)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "grab frame")
		}
		var url *string
		if err := json.Unmarshal(raw, &url); err != nil {
			return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "decode frame result")
		}
		if url == nil {
			return nil, apperrors.New(apperrors.SourceUnavailable, "element detached")
		}
		return decodeDataURL(*url)
	})
}

func decodeDataURL(url string) (image.Image, error) {
	if !strings.HasPrefix(url, pngDataURLPrefix) {
		return nil, apperrors.New(apperrors.SourceUnavailable, "frame is not a PNG data URL")
	}
	data, err := base64.StdEncoding.DecodeString(url[len(pngDataURLPrefix):])
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "decode frame base64")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.SourceUnavailable, "decode frame png")
	}
	return img, nil
}

func (s *Source) IsBuffering(ctx context.Context) bool {
	var v bool
	if err := s.eval(ctx, bufferingJS, &v); err != nil {
		return false
	}
	return v
}

func (s *Source) IsPausedOrEnded(ctx context.Context) bool {
	var v bool
	if err := s.eval(ctx, stoppedJS, &v); err != nil {
		return false
	}
	return v
}

func (s *Source) Dimensions(ctx context.Context) (int, int) {
	var d struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := s.eval(ctx, dimensionsJS, &d); err != nil {
		return 0, 0
	}
	return d.Width, d.Height
}

// Box returns the element's displayed rectangle in page coordinates.
func (s *Source) Box(ctx context.Context) (crop.Box, error) {
	var b *crop.Box
	if err := s.eval(ctx, boxJS, &b); err != nil {
		return crop.Box{}, err
	}
	if b == nil {
		return crop.Box{}, apperrors.New(apperrors.SourceUnavailable, "element detached")
	}
	return *b, nil
}

func (s *Source) eval(ctx context.Context, js string, out any) error {
	raw, err := s.page.Eval(ctx, js)
	if err != nil {
		return apperrors.Wrap(err, apperrors.SourceUnavailable, "evaluate")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(err, apperrors.SourceUnavailable, "decode result")
	}
	return nil
}
