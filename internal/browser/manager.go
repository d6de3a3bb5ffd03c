// Package browser samples a video or canvas element inside a Chrome page
// driven through Rod.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/resilience"
)

const navigateTimeout = 30 * time.Second

// Config configures the browser manager.
type Config struct {
	// URL is opened in a new tab. Empty attaches to the first existing tab.
	URL string

	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	Logger *slog.Logger
}

// Manager owns the Chrome connection and the page being watched.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg}
}

// Start connects to Chrome, retrying while it comes up, and opens the page.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := resilience.Retry(ctx, resilience.ConnectRetryConfig(), func() error {
		b, err := m.connect(ctx)
		if err != nil {
			m.cfg.Logger.Debug("browser: connect attempt failed", "error", err)
			return err
		}
		m.browser = b
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.SourceUnavailable, "browser connect")
	}

	page, err := m.openPage(ctx)
	if err != nil {
		m.cleanup()
		return apperrors.Wrap(err, apperrors.SourceUnavailable, "browser page")
	}
	m.page = page
	return nil
}

func (m *Manager) connect(ctx context.Context) (*rod.Browser, error) {
	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		if m.lnch == nil {
			m.lnch = launcher.New().Headless(true).Set("autoplay-policy", "no-user-gesture-required")
		}
		u, err := m.lnch.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch: %w", err)
		}
		wsURL = u
		m.cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	} else {
		m.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return b, nil
}

func (m *Manager) openPage(ctx context.Context) (*rod.Page, error) {
	if m.cfg.URL == "" {
		pages, err := m.browser.Pages()
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			return nil, fmt.Errorf("no open tabs to attach to")
		}
		return pages.First(), nil
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(m.cfg.URL); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", m.cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", m.cfg.URL, "error", err)
	}
	return page, nil
}

// Page returns an evaluator for the watched page, nil before Start.
func (m *Manager) Page() Evaluator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil
	}
	return rodPage{page: m.page}
}

// Close shuts down Chrome when it was launched locally.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.page = nil
}

// Evaluator runs a JavaScript function in the page and returns its JSON result.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...any) ([]byte, error)
}

type rodPage struct {
	page *rod.Page
}

func (p rodPage) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, err
	}
	return res.Value.MarshalJSON()
}
