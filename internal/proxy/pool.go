// Package proxy rotates outbound egress identities and tracks their health.
package proxy

import (
	"log/slog"
	"net/url"
	"sync"
)

// Identity is one outbound network path.
type Identity struct {
	URL       *url.URL
	Failures  int
	Successes int
	failed    bool
}

// Pool round-robins over identities that are not currently marked failed.
// When every identity is failed the failed set is cleared and rotation
// resumes — the pool fails open rather than stalling extraction.
//
// An empty pool is a fully supported mode: Next returns nil and egress is
// direct.
type Pool struct {
	mu         sync.Mutex
	identities []*Identity
	index      int
	logger     *slog.Logger
}

// NewPool creates a Pool from raw proxy URLs, skipping unparseable entries.
func NewPool(rawURLs []string, logger *slog.Logger) *Pool {
	p := &Pool{
		logger: logger.With("component", "egress_pool"),
	}
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			logger.Warn("skipping invalid proxy URL", "url", raw, "error", err)
			continue
		}
		p.identities = append(p.identities, &Identity{URL: u})
	}
	p.logger.Info("egress pool initialized", "identities", len(p.identities))
	return p
}

// Next returns the next usable identity URL, or nil for direct egress.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		return nil
	}

	if p.allFailed() {
		p.logger.Warn("all egress identities failed, clearing failed set")
		for _, id := range p.identities {
			id.failed = false
		}
	}

	for i := 0; i < len(p.identities); i++ {
		id := p.identities[p.index%len(p.identities)]
		p.index++
		if !id.failed {
			return id.URL
		}
	}
	return nil
}

// MarkFailed records a failure for the identity and removes it from
// rotation.
func (p *Pool) MarkFailed(u *url.URL) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.identities {
		if id.URL.String() == u.String() {
			id.failed = true
			id.Failures++
			p.logger.Warn("egress identity marked failed",
				"identity", id.URL.Host,
				"failures", id.Failures,
			)
			return
		}
	}
}

// MarkSucceeded records a success and restores a previously failed identity
// to rotation.
func (p *Pool) MarkSucceeded(u *url.URL) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.identities {
		if id.URL.String() == u.String() {
			id.failed = false
			id.Successes++
			return
		}
	}
}

// Size returns the number of configured identities.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}

// FailedCount returns the number of identities currently out of rotation.
func (p *Pool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.identities {
		if id.failed {
			n++
		}
	}
	return n
}

// allFailed reports whether every identity is out of rotation.
// Callers must hold p.mu.
func (p *Pool) allFailed() bool {
	for _, id := range p.identities {
		if !id.failed {
			return false
		}
	}
	return len(p.identities) > 0
}
