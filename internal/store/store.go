// Package store persists jobs, alerts, and catalog entries, and caches
// recent price checks.
package store

import (
	"context"
	"time"

	"pricepatrol/internal/types"
)

// JobStore persists search jobs. Implementations must enforce expiry on
// read: a job past its ExpiresAt is reported as types.ErrJobNotFound even
// if the backend has not reclaimed it yet.
type JobStore interface {
	InsertJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	UpdateJob(ctx context.Context, job *types.Job) error

	// FindReusable returns the most recent non-failed job for the same
	// query (case-insensitive) started within the window, skipping
	// completed jobs that produced no results. Returns
	// types.ErrJobNotFound when nothing qualifies.
	FindReusable(ctx context.Context, query string, window time.Duration) (*types.Job, error)
}

// AlertStore persists price watches.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *types.Alert) error
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
	UpdateAlert(ctx context.Context, alert *types.Alert) error
	ListAlerts(ctx context.Context, untriggeredOnly bool) ([]types.Alert, error)
}

// CatalogStore reads the static product catalog used to enrich live
// results.
type CatalogStore interface {
	FindCatalog(ctx context.Context, query string, limit int) ([]types.Listing, error)
}

// CachedPrice is one remembered price-check outcome.
type CachedPrice struct {
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	CheckedAt time.Time `json:"checkedAt"`
}

// PriceCache remembers recent price checks so back-to-back alert
// evaluations for the same product skip a live scrape. A miss is reported
// as types.ErrCacheMiss.
type PriceCache interface {
	GetPrice(ctx context.Context, key string) (*CachedPrice, error)
	SetPrice(ctx context.Context, key string, price CachedPrice, ttl time.Duration) error
}

// NopCache is a PriceCache that never hits. Used when no cache backend is
// configured.
type NopCache struct{}

func (NopCache) GetPrice(context.Context, string) (*CachedPrice, error) {
	return nil, types.ErrCacheMiss
}

func (NopCache) SetPrice(context.Context, string, CachedPrice, time.Duration) error {
	return nil
}
