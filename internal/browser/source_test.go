package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/resilience"
)

// fakePage answers each script with a canned JSON value.
type fakePage struct {
	mu      sync.Mutex
	results map[string]any
	err     error
	calls   map[string]int
	args    [][]any
}

func newFakePage() *fakePage {
	return &fakePage{results: map[string]any{}, calls: map[string]int{}}
}

func (f *fakePage) set(js string, v any) {
	f.mu.Lock()
	f.results[js] = v
	f.mu.Unlock()
}

func (f *fakePage) Eval(_ context.Context, js string, args ...any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[js]++
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(f.results[js])
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLocateNothing(t *testing.T) {
	page := newFakePage()
	src, err := NewLocator(page, nil).Locate(context.Background())
	if err != nil || src != nil {
		t.Errorf("Locate = %v, %v; want nil, nil", src, err)
	}
}

func TestLocatePassesLowercasedSuffixes(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "canvas", ID: "slide-main"})

	src, err := NewLocator(page, []string{"-ANNO", "-local"}).Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	s, ok := src.(*Source)
	if !ok || s.Kind != "canvas" || s.ID != "slide-main" {
		t.Fatalf("source = %#v", src)
	}
	got := page.args[0][0].([]string)
	if got[0] != "-anno" || got[1] != "-local" {
		t.Errorf("suffixes = %v", got)
	}
}

func TestSourceState(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "video"})
	page.set(bufferingJS, true)
	page.set(stoppedJS, false)
	page.set(dimensionsJS, map[string]int{"width": 1280, "height": 720})
	page.set(boxJS, crop.Box{Left: 10, Top: 20, Width: 640, Height: 360})
	ctx := context.Background()

	src, _ := NewLocator(page, nil).Locate(ctx)
	s := src.(*Source)

	if !s.IsBuffering(ctx) {
		t.Error("IsBuffering = false, want true")
	}
	if s.IsPausedOrEnded(ctx) {
		t.Error("IsPausedOrEnded = true, want false")
	}
	if w, h := s.Dimensions(ctx); w != 1280 || h != 720 {
		t.Errorf("Dimensions = %dx%d", w, h)
	}
	box, err := s.Box(ctx)
	if err != nil || box.Width != 640 || box.Top != 20 {
		t.Errorf("Box = %+v, %v", box, err)
	}
}

func TestCurrentFrame(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "video"})
	page.set(frameJS, pngDataURL(t, 32, 18))
	ctx := context.Background()

	src, _ := NewLocator(page, nil).Locate(ctx)
	img, err := src.CurrentFrame(ctx)
	if err != nil {
		t.Fatalf("CurrentFrame: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 18 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestCurrentFrameDetached(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "video"})
	ctx := context.Background()

	src, _ := NewLocator(page, nil).Locate(ctx)
	_, err := src.CurrentFrame(ctx)
	if !apperrors.IsCode(err, apperrors.SourceUnavailable) {
		t.Errorf("err = %v, want SourceUnavailable", err)
	}
}

func TestDecodeDataURLRejectsOtherFormats(t *testing.T) {
	if _, err := decodeDataURL("data:image/webp;base64,AAAA"); err == nil {
		t.Error("expected error for webp data URL")
	}
	if _, err := decodeDataURL(pngDataURLPrefix + "!!!"); err == nil {
		t.Error("expected error for bad base64")
	}
}

func TestBreakerStopsHammeringDeadPage(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "video"})
	ctx := context.Background()

	loc := NewLocator(page, nil)
	src, _ := loc.Locate(ctx)
	page.err = errors.New("target closed")

	for range resilience.GrabThreshold {
		if _, err := src.CurrentFrame(ctx); err == nil {
			t.Fatal("expected grab error")
		}
	}
	if loc.breaker.State() != resilience.Open {
		t.Fatalf("breaker = %s, want open", loc.breaker.State())
	}

	before := page.calls[frameJS]
	if _, err := src.CurrentFrame(ctx); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if page.calls[frameJS] != before {
		t.Error("open breaker should not evaluate the page")
	}
	if s, err := loc.Locate(ctx); s != nil || err != nil {
		t.Errorf("Locate with open breaker = %v, %v; want nil, nil", s, err)
	}
}

func TestOnGrabStateReportsOpen(t *testing.T) {
	page := newFakePage()
	page.set(locateJS, Element{Kind: "canvas", ID: "slides"})
	ctx := context.Background()

	var states []string
	loc := NewLocator(page, nil).OnGrabState(func(s string) { states = append(states, s) })
	src, _ := loc.Locate(ctx)
	page.err = errors.New("target closed")
	for range resilience.GrabThreshold {
		src.CurrentFrame(ctx)
	}
	if len(states) != 1 || states[0] != "open" {
		t.Errorf("states = %v, want [open]", states)
	}
}
