// Package sources holds the pluggable per-catalog extraction strategies.
// Selector knowledge lives in one adapter per source, registered in a
// Registry keyed by source name.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"pricepatrol/internal/browser"
	"pricepatrol/internal/config"
	"pricepatrol/internal/fetch"
	"pricepatrol/internal/types"
)

// ExtractInput carries the query for one extraction attempt.
type ExtractInput struct {
	Query    string
	Category string
}

// Adapter is the common contract implemented once per external catalog.
type Adapter interface {
	// Name identifies the catalog (also the Listing.Source value).
	Name() string

	// BuildQueryURL maps a query and category to a search URL.
	// Deterministic and pure.
	BuildQueryURL(query, category string) string

	// Extract drives a rendered page through the search URL and returns raw
	// candidate records. A detected blocking signature surfaces
	// types.ErrSourceBlocked and is not retried within the call.
	Extract(ctx context.Context, in *ExtractInput) ([]types.RawListing, error)

	// ExtractDetail resolves the current price of one exact product page,
	// used by the alert evaluator.
	ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error)
}

// Deps are the shared services adapters extract through.
type Deps struct {
	Browser *browser.Manager
	HTTP    *fetch.Client
	Scrape  *config.ScrapeConfig
	Nav     *config.BrowserConfig
	Logger  *slog.Logger
}

// Registry maps source names to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// NewDefaultRegistry registers every built-in adapter.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(NewAmazon(deps))
	r.Register(NewFlipkart(deps))
	r.Register(NewCroma(deps))
	r.Register(NewReliance(deps))
	return r
}

// Register adds an adapter, replacing any previous one with the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a source name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownSource, name)
	}
	return a, nil
}

// Names returns all registered source names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered adapter in name order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}
