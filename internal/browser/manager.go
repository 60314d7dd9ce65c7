// Package browser owns the single shared headless rendering engine and
// serializes page-context creation against it.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"pricepatrol/internal/config"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/proxy"
	"pricepatrol/internal/retry"
	"pricepatrol/internal/types"
)

// Page is one isolated page context handed out by the manager.
type Page struct {
	*rod.Page
	router *rod.HijackRouter
}

// Manager owns exactly one live browser process at a time. Launch, teardown,
// and relaunch are serialized; page creation goes through a FIFO admission
// queue so concurrent callers never race a cold start.
type Manager struct {
	cfg    *config.BrowserConfig
	pool   *proxy.Pool
	logger *slog.Logger
	queue  *admissionQueue

	metrics *observability.Metrics

	mu       sync.Mutex
	browser  *rod.Browser
	identity *url.URL
}

// SetMetrics attaches pipeline counters. Optional.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// NewManager creates a Manager. The browser is launched lazily on the first
// page acquisition.
func NewManager(cfg *config.BrowserConfig, pool *proxy.Pool, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		pool:   pool,
		logger: logger.With("component", "render_session"),
		queue:  newAdmissionQueue(cfg.MaxConcurrentPages),
	}
}

// AcquirePage returns a stealth page context against the live browser,
// (re)launching it if needed. Exhausted launch retries surface
// types.ErrBrowserLaunch, the only orchestration-fatal condition.
func (m *Manager) AcquirePage(ctx context.Context) (*Page, error) {
	if err := m.queue.Acquire(ctx); err != nil {
		return nil, err
	}

	page, err := m.createPage(ctx)
	if err != nil {
		m.queue.Release()
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.PagesAcquired.Add(1)
	}
	return page, nil
}

// ReleasePage closes the page and frees its admission slot. Close failures
// are tolerated.
func (m *Manager) ReleasePage(page *Page) {
	if page == nil {
		return
	}
	if page.router != nil {
		if err := page.router.Stop(); err != nil {
			m.logger.Debug("hijack router stop failed", "error", err)
		}
	}
	if err := page.Page.Close(); err != nil {
		m.logger.Warn("page close failed", "error", err)
	}
	m.queue.Release()
}

// Close tears down the browser process.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	return err
}

// createPage ensures a live browser under the correct egress identity and
// opens one configured page context on it.
func (m *Manager) createPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := m.pool.Next()
	if err := m.ensureBrowser(ctx, wanted); err != nil {
		return nil, err
	}

	rodPage, err := stealth.Page(m.browser)
	if err != nil {
		// The engine may have died since the last page; one relaunch.
		m.logger.Warn("page creation failed, relaunching browser", "error", err)
		m.teardown()
		if err := m.ensureBrowser(ctx, wanted); err != nil {
			return nil, err
		}
		rodPage, err = stealth.Page(m.browser)
		if err != nil {
			m.pool.MarkFailed(m.identity)
			return nil, fmt.Errorf("create page: %w", err)
		}
	}

	if err := m.configurePage(rodPage); err != nil {
		_ = rodPage.Close()
		return nil, err
	}

	router, err := m.blockHeavyResources(rodPage)
	if err != nil {
		m.logger.Warn("resource filtering unavailable", "error", err)
	}

	return &Page{Page: rodPage, router: router}, nil
}

// ensureBrowser launches the browser if absent, or relaunches it when the
// egress identity changed. Callers must hold m.mu.
func (m *Manager) ensureBrowser(ctx context.Context, identity *url.URL) error {
	if m.browser != nil && sameIdentity(m.identity, identity) {
		return nil
	}
	if m.browser != nil && m.metrics != nil {
		m.metrics.ProxyRotations.Add(1)
	}
	m.teardown()

	policy := retry.Policy{
		MaxAttempts: m.cfg.LaunchRetries,
		Initial:     m.cfg.LaunchRetryDelay,
		Max:         30 * m.cfg.LaunchRetryDelay,
		Multiplier:  2,
		Jitter:      true,
	}

	err := policy.Do(ctx, func() error {
		return m.launch(identity)
	})
	if err != nil {
		m.pool.MarkFailed(identity)
		return fmt.Errorf("%w: %v", types.ErrBrowserLaunch, err)
	}

	m.identity = identity
	if identity != nil {
		m.pool.MarkSucceeded(identity)
	}
	m.logger.Info("browser launched",
		"proxied", identity != nil,
		"max_pages", m.cfg.MaxConcurrentPages,
	)
	return nil
}

// launch starts one Chromium process and connects to it.
func (m *Manager) launch(identity *url.URL) error {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight))

	if identity != nil {
		l = l.Proxy(identity.String())
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	m.browser = b
	return nil
}

// teardown closes the current browser, tolerating failure.
// Callers must hold m.mu.
func (m *Manager) teardown() {
	if m.browser == nil {
		return
	}
	if err := m.browser.Close(); err != nil {
		m.logger.Debug("browser close failed", "error", err)
	}
	m.browser = nil
	m.identity = nil
}

// configurePage applies the consistent identity string and bounded viewport.
func (m *Manager) configurePage(page *rod.Page) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: m.cfg.UserAgent,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	return nil
}

// blockHeavyResources aborts image, stylesheet, font, and media requests to
// cut page load time.
func (m *Manager) blockHeavyResources(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		switch h.Request.Type() {
		case proto.NetworkResourceTypeImage,
			proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeMedia:
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		default:
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

func sameIdentity(a, b *url.URL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
