package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GriffinCanCode/slidecapture/internal/archive"
	"github.com/GriffinCanCode/slidecapture/internal/browser"
	"github.com/GriffinCanCode/slidecapture/internal/capture"
	"github.com/GriffinCanCode/slidecapture/internal/catalog"
	"github.com/GriffinCanCode/slidecapture/internal/config"
	"github.com/GriffinCanCode/slidecapture/internal/crop"
	"github.com/GriffinCanCode/slidecapture/internal/dedup"
	"github.com/GriffinCanCode/slidecapture/internal/health"
	"github.com/GriffinCanCode/slidecapture/internal/orchestrator/events"
	"github.com/GriffinCanCode/slidecapture/internal/screen"
	"github.com/GriffinCanCode/slidecapture/internal/settings"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	locator capture.Locator
	engine  []capture.Option
}

// WithLocator replaces the source chosen by SOURCE_KIND.
func WithLocator(l capture.Locator) Option { return func(o *options) { o.locator = l } }

// WithEngineOptions passes options through to the capture engine.
func WithEngineOptions(opts ...capture.Option) Option {
	return func(o *options) { o.engine = append(o.engine, opts...) }
}

// Manager owns the capture engine and everything around it.
type Manager struct {
	cfg *config.Config

	engine   *capture.Engine
	events   *events.Store
	settings *settings.Store
	watcher  *settings.Watcher
	archive  *archive.Writer
	catalog  *catalog.Catalog
	batcher  *catalog.Batcher
	health   *health.Reporter
	closers  []func() error

	wg sync.WaitGroup
}

// New builds the engine from cfg. The browser source connects here, so ctx
// bounds how long startup may wait for Chrome.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := trace.Logger(ctx)

	m := &Manager{
		cfg:     cfg,
		events:  events.NewStore(EventMaxEntries, EventSubscriberBuffer),
		archive: archive.NewWriter(cfg.ArchiveDir),
		health:  health.NewReporter(),
	}

	var err error
	m.settings, err = settings.Open(cfg.SettingsFile, cfg.Region())
	if err != nil {
		return nil, err
	}

	m.catalog, err = catalog.Open(ctx, cfg.CatalogDB)
	if err != nil {
		return nil, err
	}
	m.closers = append(m.closers, m.catalog.Close)
	m.batcher = catalog.NewBatcher(m.catalog, CatalogBatcherMaxSize, CatalogBatcherFlushDelay, archive.FileName)

	pipeline, err := dedup.NewPipeline(cfg.Thresholds(),
		dedup.WithHasher(dedup.ImageHasher{AverageSize: cfg.AverageHashSize}),
		dedup.WithObserver(func(stage string, v dedup.Verdict) {
			slog.Debug("dedup stage", "stage", stage, "verdict", v.String())
		}),
	)
	if err != nil {
		m.Close()
		return nil, err
	}

	locator := o.locator
	if locator == nil {
		locator, err = m.newLocator(ctx)
		if err != nil {
			m.Close()
			return nil, err
		}
	}

	ecfg := cfg.Capture()
	ecfg.Region = m.settings.Region()
	engineOpts := append([]capture.Option{
		capture.WithSink(capture.Sinks{m.archive, m.batcher}),
		capture.WithObserver(eventBridge{store: m.events}, m.health),
	}, o.engine...)
	m.engine, err = capture.New(ecfg, pipeline, locator, engineOpts...)
	if err != nil {
		m.Close()
		return nil, err
	}

	m.watcher, err = settings.NewWatcher(m.settings, func(ctx context.Context, r crop.Region) {
		if err := m.engine.SetRegion(ctx, r); err != nil {
			trace.Logger(ctx).Warn("apply reloaded crop failed", "error", err)
		}
	})
	if err != nil {
		log.Warn("crop settings will not live-reload", "error", err)
	}

	log.Info("orchestrator ready", "source", cfg.SourceKind, "region", ecfg.Region.String())
	return m, nil
}

func (m *Manager) newLocator(ctx context.Context) (capture.Locator, error) {
	switch m.cfg.SourceKind {
	case config.SourceScreen:
		src := screen.New()
		m.closers = append(m.closers, func() error { src.Close(); return nil })
		return screen.Locator{Source: src}, nil
	default:
		bm := browser.NewManager(browser.Config{URL: m.cfg.BrowserURL, RemoteURL: m.cfg.BrowserRemote})
		if err := bm.Start(ctx); err != nil {
			return nil, err
		}
		m.closers = append(m.closers, bm.Close)
		loc := browser.NewLocator(bm.Page(), m.cfg.ExcludedCanvasSuffixes).OnGrabState(func(state string) {
			m.events.Emit(events.Event{Type: events.TypeDebugLog, Data: DebugData{Message: "frame grabs " + state}})
		})
		return loc, nil
	}
}

// Run drives the engine and the settings watcher until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.watcher != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.watcher.Run(ctx)
		}()
	}
	err := m.engine.Run(ctx)
	m.wg.Wait()
	return err
}

// SetCrop saves the selection and applies it to the engine.
func (m *Manager) SetCrop(ctx context.Context, c settings.Crop) error {
	if err := m.settings.Save(c); err != nil {
		return err
	}
	r, _ := c.Region()
	return m.engine.SetRegion(ctx, r)
}

func (m *Manager) Engine() *capture.Engine   { return m.engine }
func (m *Manager) Events() *events.Store     { return m.events }
func (m *Manager) Settings() *settings.Store { return m.settings }
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }
func (m *Manager) Archive() *archive.Writer  { return m.archive }
func (m *Manager) Health() *health.Reporter  { return m.health }

// Close flushes the catalog and releases sources.
func (m *Manager) Close() {
	if m.batcher != nil {
		m.batcher.Stop()
	}
	m.health.Shutdown()
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	m.closers = nil
}
