// Package ratelimit implements per-source sliding-window admission control.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"pricepatrol/internal/config"
)

// Window is the granularity of the admission window.
const Window = time.Minute

// maxJitter desynchronizes correlated callers waiting on the same window.
const maxJitter = 400 * time.Millisecond

// Governor admits at most N requests per source per minute. The window
// resets lazily on the first check after expiry rather than via a timer.
type Governor struct {
	cfg    *config.RateConfig
	mu     sync.Mutex
	counts map[string]*sourceWindow
	logger *slog.Logger

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type sourceWindow struct {
	started time.Time
	count   int
}

// NewGovernor creates a Governor from the rate configuration.
func NewGovernor(cfg *config.RateConfig, logger *slog.Logger) *Governor {
	return &Governor{
		cfg:    cfg,
		counts: make(map[string]*sourceWindow),
		logger: logger.With("component", "rate_governor"),
		now:    time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// AwaitSlot blocks until the source's window has capacity, adding a small
// random jitter on top of the computed wait.
func (g *Governor) AwaitSlot(ctx context.Context, source string) error {
	for {
		wait := g.nextWait(source)
		if wait <= 0 {
			return nil
		}
		wait += time.Duration(rand.Int63n(int64(maxJitter)))
		g.logger.Debug("rate ceiling reached, waiting",
			"source", source,
			"wait", wait,
		)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordRequest counts one admitted request against the source's window.
func (g *Governor) RecordRequest(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.window(source)
	w.count++
}

// InWindow returns the number of requests recorded in the current window.
func (g *Governor) InWindow(source string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window(source).count
}

// nextWait returns zero if the window has capacity, otherwise how long until
// it expires.
func (g *Governor) nextWait(source string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	w := g.window(source)
	if w.count < g.cfg.SourceLimit(source) {
		return 0
	}
	return w.started.Add(Window).Sub(g.now())
}

// window returns the live window for a source, resetting it if expired.
// Callers must hold g.mu.
func (g *Governor) window(source string) *sourceWindow {
	now := g.now()
	w, ok := g.counts[source]
	if !ok || now.Sub(w.started) >= Window {
		w = &sourceWindow{started: now}
		g.counts[source] = w
	}
	return w
}
