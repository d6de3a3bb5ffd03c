package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/raster"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

// Config holds the engine's geometry and timing.
type Config struct {
	Region          crop.Region
	ThumbnailSize   int
	CaptureInterval time.Duration
	SearchInterval  time.Duration
	SearchTimeout   time.Duration
}

// DefaultConfig samples the full frame once a second.
func DefaultConfig() Config {
	return Config{
		Region:          crop.Identity(),
		ThumbnailSize:   raster.DefaultSize,
		CaptureInterval: DefaultCaptureInterval,
		SearchInterval:  DefaultSearchInterval,
		SearchTimeout:   DefaultSearchTimeout,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if err := c.Region.Validate(); err != nil {
		return err
	}
	if c.ThumbnailSize <= 0 {
		return apperrors.Newf(apperrors.Configuration, "thumbnail size %d", c.ThumbnailSize)
	}
	for _, iv := range []struct {
		name string
		d    time.Duration
	}{
		{"capture interval", c.CaptureInterval},
		{"search interval", c.SearchInterval},
		{"search timeout", c.SearchTimeout},
	} {
		if iv.d <= 0 {
			return apperrors.Newf(apperrors.Configuration, "%s must be positive, got %s", iv.name, iv.d)
		}
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithSink sets where stopped sessions are delivered.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithEncoder replaces the PNG encoder.
func WithEncoder(enc Encoder) Option { return func(e *Engine) { e.encoder = enc } }

// WithObserver adds observers; they are called in registration order.
func WithObserver(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// WithIDFunc replaces the session id generator.
func WithIDFunc(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdReset
	cmdAcknowledge
	cmdDiscard
	cmdRegion
	cmdSync
)

type command struct {
	kind   commandKind
	region crop.Region
	reply  chan error
}

// Engine drives one capture session at a time. Ticks, polls and control
// commands are serialised on the goroutine running Run.
type Engine struct {
	cfg       Config
	pipeline  *dedup.Pipeline
	locator   Locator
	clock     Clock
	sink      Sink
	encoder   Encoder
	observers []Observer
	observer  Observer
	newID     func() string

	cmds    chan command
	running atomic.Bool

	mu      sync.RWMutex
	session *Session
	region  crop.Region
	source  Source

	// owned by the loop goroutine
	captureTicker Ticker
	pollTicker    Ticker
}

// New builds an idle engine. Call Run to start its loop.
func New(cfg Config, pipeline *dedup.Pipeline, locator Locator, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, apperrors.New(apperrors.Configuration, "nil similarity pipeline")
	}
	if locator == nil {
		return nil, apperrors.New(apperrors.Configuration, "nil source locator")
	}

	e := &Engine{
		cfg:      cfg,
		pipeline: pipeline,
		locator:  locator,
		clock:    RealClock{},
		encoder:  PNGEncoder{},
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		cmds:     make(chan command, commandBuffer),
		region:   cfg.Region.Clamped(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.observer = multiObserver(e.observers)
	e.session = &Session{ID: e.newID(), Status: Idle, Started: e.clock.Now()}
	return e, nil
}

// Run processes timer fires and commands until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.Internal, "engine loop already running")
	}
	defer e.running.Store(false)
	defer e.stopTimers()

	trace.Logger(ctx).Info("capture engine started",
		"region", e.Region().String(),
		"capture_interval", e.cfg.CaptureInterval,
		"search_timeout", e.cfg.SearchTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-e.cmds:
			cmd.reply <- e.handle(ctx, cmd)
		case <-tickerC(e.pollTicker):
			e.poll(ctx)
		case <-tickerC(e.captureTicker):
			e.tick(ctx)
		}
	}
}

func tickerC(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

// Start begins searching. A stopped session is replaced by a fresh one; a
// timed-out session resumes with its frames intact.
func (e *Engine) Start(ctx context.Context) error { return e.send(ctx, command{kind: cmdStart}) }

// Stop ends the session and hands its frames to the sink.
func (e *Engine) Stop(ctx context.Context) error { return e.send(ctx, command{kind: cmdStop}) }

// Reset clears retained frames and the baseline and searches again.
func (e *Engine) Reset(ctx context.Context) error { return e.send(ctx, command{kind: cmdReset}) }

// Acknowledge resumes searching after a timeout.
func (e *Engine) Acknowledge(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdAcknowledge})
}

// Discard drops the session without finalizing it and goes idle.
func (e *Engine) Discard(ctx context.Context) error { return e.send(ctx, command{kind: cmdDiscard}) }

// SetRegion changes the crop for subsequent ticks. Fractions below
// crop.MinFraction are raised to it.
func (e *Engine) SetRegion(ctx context.Context, r crop.Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return e.send(ctx, command{kind: cmdRegion, region: r.Clamped()})
}

func (e *Engine) sync(ctx context.Context) error { return e.send(ctx, command{kind: cmdSync}) }

func (e *Engine) send(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	select {
	case e.cmds <- c:
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "engine command not delivered")
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "engine command not acknowledged")
	}
}

// Snapshot returns the current session summary.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		ID:             e.session.ID,
		Status:         e.session.Status,
		Frames:         len(e.session.Retained),
		Region:         e.region,
		SourceAttached: e.source != nil,
		Started:        e.session.Started,
	}
}

// Retained returns a copy of the retained frames.
func (e *Engine) Retained() []RetainedFrame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]RetainedFrame, len(e.session.Retained))
	copy(out, e.session.Retained)
	return out
}

// Frame returns retained frame n.
func (e *Engine) Frame(n int) (RetainedFrame, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n < 0 || n >= len(e.session.Retained) {
		return RetainedFrame{}, false
	}
	return e.session.Retained[n], true
}

// Baseline returns the signature new frames are compared against.
func (e *Engine) Baseline() dedup.Baseline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.baseline
}

// Region returns the active crop.
func (e *Engine) Region() crop.Region {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.region
}

func (e *Engine) handle(ctx context.Context, c command) error {
	status := e.status()
	switch c.kind {
	case cmdStart:
		switch status {
		case Searching, Capturing:
			return nil
		case Stopped:
			e.renew()
		}
		e.beginSearch(ctx)
	case cmdStop:
		if status == Idle || status == Stopped {
			return nil
		}
		e.stop(ctx, "stopped by operator")
	case cmdReset:
		e.stopTimers()
		e.detach()
		e.renew()
		e.beginSearch(ctx)
	case cmdAcknowledge:
		if status != TimedOut {
			return apperrors.Newf(apperrors.InvalidArgument, "nothing to acknowledge in status %s", status)
		}
		e.beginSearch(ctx)
	case cmdDiscard:
		e.stopTimers()
		e.detach()
		e.renew()
		e.setStatus(ctx, Idle)
	case cmdRegion:
		e.mu.Lock()
		e.region = c.region
		e.mu.Unlock()
		trace.Logger(ctx).Info("crop region changed", "region", c.region.String())
		e.highlight(ctx)
	case cmdSync:
	}
	return nil
}

func (e *Engine) status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.Status
}

func (e *Engine) setStatus(ctx context.Context, to Status) {
	e.mu.Lock()
	from := e.session.Status
	e.session.Status = to
	id := e.session.ID
	e.mu.Unlock()

	if from == to {
		return
	}
	trace.Logger(ctx).Info("capture status changed", "session_id", id, "from", from, "to", to)
	e.observer.StatusChanged(id, from, to)
}

// renew swaps in an empty session, keeping the current status until the
// caller moves it on.
func (e *Engine) renew() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = &Session{ID: e.newID(), Status: e.session.Status, Started: e.clock.Now()}
}

func (e *Engine) detach() {
	e.mu.Lock()
	e.source = nil
	e.mu.Unlock()
}

func (e *Engine) stopTimers() {
	if e.pollTicker != nil {
		e.pollTicker.Stop()
		e.pollTicker = nil
	}
	if e.captureTicker != nil {
		e.captureTicker.Stop()
		e.captureTicker = nil
	}
}

func (e *Engine) beginSearch(ctx context.Context) {
	e.stopTimers()
	e.mu.Lock()
	e.session.searchStart = e.clock.Now()
	e.mu.Unlock()
	e.setStatus(ctx, Searching)

	e.pollTicker = e.clock.NewTicker(e.cfg.SearchInterval)
	e.poll(ctx)
}

func (e *Engine) beginCapture(ctx context.Context, src Source) {
	if e.pollTicker != nil {
		e.pollTicker.Stop()
		e.pollTicker = nil
	}
	e.attach(ctx, src)
	e.setStatus(ctx, Capturing)
	if e.captureTicker == nil {
		e.captureTicker = e.clock.NewTicker(e.cfg.CaptureInterval)
	}
}

func (e *Engine) attach(ctx context.Context, src Source) {
	e.mu.Lock()
	e.source = src
	e.mu.Unlock()
	e.highlight(ctx)
}

// locate asks the locator for a source with a usable size.
func (e *Engine) locate(ctx context.Context) Source {
	src, err := e.locator.Locate(ctx)
	if err != nil {
		trace.Logger(ctx).Debug("source lookup failed", "error", err)
		return nil
	}
	if src == nil {
		return nil
	}
	if w, h := src.Dimensions(ctx); w <= 0 || h <= 0 {
		return nil
	}
	return src
}

func (e *Engine) poll(ctx context.Context) {
	if e.status() != Searching {
		return
	}
	if src := e.locate(ctx); src != nil {
		e.beginCapture(ctx, src)
		return
	}

	e.mu.RLock()
	waited := e.clock.Now().Sub(e.session.searchStart)
	e.mu.RUnlock()
	if waited >= e.cfg.SearchTimeout {
		e.stopTimers()
		trace.Logger(ctx).Warn("no usable source found", "waited", waited)
		e.setStatus(ctx, TimedOut)
	}
}

func (e *Engine) skip(ctx context.Context, id, reason string) {
	trace.Logger(ctx).Debug("tick skipped", "reason", reason)
	e.observer.TickSkipped(id, reason)
}

// tick samples the source once and retains the frame if it is new.
func (e *Engine) tick(ctx context.Context) {
	e.mu.RLock()
	status, id, region, src, base := e.session.Status, e.session.ID, e.region, e.source, e.session.baseline
	e.mu.RUnlock()
	if status != Capturing {
		return
	}

	ctx, span := trace.StartSpan(trace.WithSession(ctx, id), "capture_tick")
	defer func() {
		span.End()
		trace.Logger(ctx).Debug("tick done", "span", span)
	}()
	log := trace.Logger(ctx)

	if src == nil {
		if src = e.locate(ctx); src == nil {
			e.skip(ctx, id, SkipNoSource)
			return
		}
		log.Info("source re-acquired")
		e.attach(ctx, src)
	}
	if src.IsBuffering(ctx) {
		e.skip(ctx, id, SkipBuffering)
		return
	}
	if src.IsPausedOrEnded(ctx) {
		e.stop(ctx, "source paused or ended")
		return
	}

	frame, err := src.CurrentFrame(ctx)
	if err != nil {
		e.dropSource(ctx, err)
		e.skip(ctx, id, SkipError)
		return
	}
	b := frame.Bounds()
	rect, err := crop.Compute(b.Dx(), b.Dy(), region)
	if err != nil {
		log.Error("crop failed", "error", err)
		e.skip(ctx, id, SkipError)
		return
	}
	thumb, err := raster.Reduce(frame, rect, e.cfg.ThumbnailSize)
	if err != nil {
		if apperrors.IsCode(err, apperrors.SourceUnavailable) {
			e.dropSource(ctx, err)
		} else {
			log.Warn("reduce failed", "error", err)
		}
		e.skip(ctx, id, SkipError)
		return
	}

	res, err := e.pipeline.Classify(thumb, base)
	if err != nil {
		if apperrors.IsCode(err, apperrors.LengthMismatch) {
			log.Error("hash length mismatch", "error", err)
		} else {
			log.Warn("classification failed", "error", err)
		}
		e.skip(ctx, id, SkipError)
		return
	}
	span.SetAttr("verdict", res.Verdict.String())
	span.SetAttr("stage", res.Stage)
	span.SetAttr("similarity", res.Similarity)
	if res.Verdict != dedup.Distinct {
		return
	}

	full, err := raster.Crop(frame, rect)
	if err != nil {
		log.Warn("crop copy failed", "error", err)
		e.skip(ctx, id, SkipError)
		return
	}
	encoded, err := e.encoder.Encode(full)
	if err != nil {
		log.Warn("encode failed", "error", err)
		e.skip(ctx, id, SkipError)
		return
	}
	rf := RetainedFrame{Encoded: encoded, Timestamp: e.clock.Now(), Width: rect.W, Height: rect.H}

	e.mu.Lock()
	// Unreachable while ticks run on the loop goroutine; keeps a late result
	// out of a stopped or renewed session if hashing ever moves off it.
	if e.session.Status != Capturing || e.session.ID != id {
		e.mu.Unlock()
		log.Debug("discarding frame from finished session")
		return
	}
	e.session.Retained = append(e.session.Retained, rf)
	e.session.baseline = res.Signature
	idx := len(e.session.Retained) - 1
	e.mu.Unlock()

	log.Info("frame retained", "index", idx, "stage", res.Stage, "similarity", res.Similarity)
	e.observer.FrameRetained(id, idx, rf, res)
}

func (e *Engine) dropSource(ctx context.Context, err error) {
	trace.Logger(ctx).Warn("source unavailable, relocating", "error", err)
	e.detach()
}

func (e *Engine) stop(ctx context.Context, reason string) {
	e.stopTimers()
	e.detach()
	e.setStatus(ctx, Stopped)

	e.mu.RLock()
	id := e.session.ID
	frames := make([]RetainedFrame, len(e.session.Retained))
	copy(frames, e.session.Retained)
	e.mu.RUnlock()

	trace.Logger(ctx).Info("capture stopped", "session_id", id, "reason", reason, "frames", len(frames))
	if e.sink == nil {
		return
	}
	if err := e.sink.Finalize(ctx, id, frames); err != nil {
		trace.Logger(ctx).Error("finalize failed", "session_id", id, "error", err)
	}
}

func (e *Engine) highlight(ctx context.Context) {
	e.mu.RLock()
	src, region, id := e.source, e.region, e.session.ID
	e.mu.RUnlock()

	boxed, ok := src.(Boxed)
	if !ok {
		return
	}
	box, err := boxed.Box(ctx)
	if err != nil {
		trace.Logger(ctx).Debug("no element box for highlight", "error", err)
		return
	}
	w, h := src.Dimensions(ctx)
	ov, err := crop.ToOverlay(box, w, h, region)
	if err != nil {
		return
	}
	e.observer.RegionHighlighted(id, ov)
}
