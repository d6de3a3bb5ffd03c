package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/config"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator"
	"github.com/GriffinCanCode/slidecapture/internal/settings"
)

type staticSource struct {
	img image.Image
}

func (s staticSource) CurrentFrame(context.Context) (image.Image, error) { return s.img, nil }
func (s staticSource) IsBuffering(context.Context) bool                  { return false }
func (s staticSource) IsPausedOrEnded(context.Context) bool              { return false }
func (s staticSource) Dimensions(context.Context) (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func slide() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 160, 90))
	for y := range 90 {
		for x := range 160 {
			v := uint8(x * y)
			img.Set(x, y, color.RGBA{v, v, 255 - v, 255})
		}
	}
	return img
}

type fixture struct {
	mgr   *orchestrator.Manager
	clock *capture.ManualClock
	srv   *Server
	h     http.Handler
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Load()
	cfg.SettingsFile = filepath.Join(dir, "settings.yaml")
	cfg.ArchiveDir = filepath.Join(dir, "captures")
	cfg.CatalogDB = filepath.Join(dir, "catalog.db")

	clock := capture.NewManualClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	src := staticSource{img: slide()}
	mgr, err := orchestrator.New(context.Background(), cfg,
		orchestrator.WithLocator(capture.LocatorFunc(func(context.Context) (capture.Source, error) { return src, nil })),
		orchestrator.WithEngineOptions(capture.WithClock(clock)),
	)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	srv := New(mgr)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		mgr.Close()
	})
	return &fixture{mgr: mgr, clock: clock, srv: srv, h: srv.Handler(), ctx: ctx}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

// tick fires one capture tick and waits for the loop to finish it.
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	f.clock.Advance(time.Second)
	// Start is a no-op while capturing, so it doubles as a barrier
	if err := f.mgr.Engine().Start(f.ctx); err != nil {
		t.Fatal(err)
	}
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) capture.Snapshot {
	t.Helper()
	var snap capture.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, rec.Body.String())
	}
	return snap
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(v, "PUT") {
		t.Errorf("CORS methods = %q, want PUT allowed", v)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	now := time.Now()
	for i := range RateLimitMessages {
		if !rl.allow(now) {
			t.Fatalf("message %d rejected", i)
		}
	}
	if rl.allow(now) {
		t.Error("message over the limit allowed")
	}
	if !rl.allow(now.Add(RateLimitWindow + time.Millisecond)) {
		t.Error("window should slide")
	}
}

func TestCaptureLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/capture", "")
	if rec.Code != http.StatusOK || decodeSnapshot(t, rec).Status != capture.Idle {
		t.Fatalf("initial snapshot = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "POST", "/api/capture/start", "")
	snap := decodeSnapshot(t, rec)
	if snap.Status != capture.Capturing || !snap.SourceAttached {
		t.Fatalf("after start = %+v", snap)
	}

	f.tick(t)
	f.tick(t)

	if snap := decodeSnapshot(t, f.do(t, "GET", "/api/capture", "")); snap.Frames != 1 {
		t.Errorf("frames = %d, want 1 for a static slide", snap.Frames)
	}

	rec = f.do(t, "GET", "/api/capture/frames/1", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("frame 1 = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if _, err := decodeImage(rec.Body.Bytes()); err != nil {
		t.Errorf("frame is not a PNG: %v", err)
	}
	if rec := f.do(t, "GET", "/api/capture/frames/2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("frame 2 status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/capture/frames/x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("frame x status = %d, want 400", rec.Code)
	}

	rec = f.do(t, "GET", "/api/capture/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d", rec.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil || len(zr.File) != 2 {
		t.Errorf("archive entries = %v, err %v", zr, err)
	}

	rec = f.do(t, "POST", "/api/capture/stop", "")
	if snap := decodeSnapshot(t, rec); snap.Status != capture.Stopped || snap.Frames != 1 {
		t.Errorf("after stop = %+v", snap)
	}

	rec = f.do(t, "DELETE", "/api/capture", "")
	if snap := decodeSnapshot(t, rec); snap.Status != capture.Idle || snap.Frames != 0 {
		t.Errorf("after delete = %+v", snap)
	}
}

func decodeImage(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/capture/acknowledge", http.StatusBadRequest},
		{"/api/capture/rewind", http.StatusBadRequest},
		{"/api/capture/delete", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := f.do(t, "POST", tt.path, "")
		if rec.Code != tt.want {
			t.Errorf("POST %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
		var em ErrorMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &em); err != nil || em.Type != "error" || em.Code == "" {
			t.Errorf("POST %s body = %s", tt.path, rec.Body.String())
		}
	}
	if rec := f.do(t, "GET", "/api/capture/archive", ""); rec.Code != http.StatusNotFound {
		t.Errorf("empty archive = %d, want 404", rec.Code)
	}
}

func TestCropEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/crop", "")
	var c settings.Crop
	json.Unmarshal(rec.Body.Bytes(), &c)
	if c.Direction != "center" || c.WidthPercentage != 100 {
		t.Errorf("default crop = %+v", c)
	}

	rec = f.do(t, "PUT", "/api/crop", `{"direction":"bottom-right","widthPercentage":75,"heightPercentage":75}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT crop = %d %s", rec.Code, rec.Body.String())
	}
	if r := f.mgr.Engine().Region(); r.WidthFraction != 0.75 || r.Anchor != "bottom-right" {
		t.Errorf("engine region = %+v", r)
	}

	for _, body := range []string{`{"direction":"up","widthPercentage":75,"heightPercentage":75}`, `not json`} {
		if rec := f.do(t, "PUT", "/api/crop", body); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %s = %d, want 400", body, rec.Code)
		}
	}
}

func TestSessionsAndEvents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/sessions", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("sessions = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, "GET", "/api/sessions/nope/frames", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session frames = %d, want 404", rec.Code)
	}

	f.do(t, "POST", "/api/capture/start", "")
	rec = f.do(t, "GET", "/api/events?limit=10", "")
	var evts []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &evts); err != nil || len(evts) == 0 {
		t.Fatalf("events = %s", rec.Body.String())
	}
	if evts[0]["type"] != "status" {
		t.Errorf("first event = %v", evts[0])
	}
}

func TestWebSocketControl(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello map[string]any
	if err := wsjson.Read(ctx, conn, &hello); err != nil || hello["type"] != "status" {
		t.Fatalf("hello = %v, %v", hello, err)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: "start"}); err != nil {
		t.Fatal(err)
	}
	ack := readUntil(t, ctx, conn, "ack")
	if ack["command"] != "start" {
		t.Errorf("ack = %v", ack)
	}

	wsjson.Write(ctx, conn, Message{Type: "acknowledge"})
	if e := readUntil(t, ctx, conn, "error"); e["code"] != "INVALID_ARGUMENT" {
		t.Errorf("error = %v", e)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for range RateLimitMessages + 1 {
		wsjson.Write(ctx, conn, Message{Type: "noop"})
	}
	for {
		var msg ErrorMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("no rate limit message: %v", err)
		}
		if msg.Message == "rate limit exceeded" {
			return
		}
	}
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var m map[string]any
		if json.Unmarshal(data, &m) == nil && m["type"] == typ {
			return m
		}
	}
}
