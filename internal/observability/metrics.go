// Package observability exposes pipeline counters in Prometheus text
// exposition format.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for the scraping pipeline.
type Metrics struct {
	// Job metrics
	JobsCreated   atomic.Int64
	JobsReused    atomic.Int64
	JobsCompleted atomic.Int64
	JobsFailed    atomic.Int64

	// Extraction metrics
	ExtractionsTotal  atomic.Int64
	ExtractionsFailed atomic.Int64
	SourcesBlocked    atomic.Int64

	// Listing metrics
	ListingsExtracted  atomic.Int64
	ListingsNormalized atomic.Int64
	ListingsDropped    atomic.Int64

	// Alert metrics
	AlertChecks     atomic.Int64
	AlertsTriggered atomic.Int64
	PriceCacheHits  atomic.Int64

	// Browser metrics
	PagesAcquired  atomic.Int64
	ProxyRotations atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves counters in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"pricepatrol_jobs_created_total", "Total search jobs created", m.JobsCreated.Load()},
		{"pricepatrol_jobs_reused_total", "Total jobs served from the reuse window", m.JobsReused.Load()},
		{"pricepatrol_jobs_completed_total", "Total jobs completed", m.JobsCompleted.Load()},
		{"pricepatrol_jobs_failed_total", "Total jobs failed", m.JobsFailed.Load()},
		{"pricepatrol_extractions_total", "Total per-source extractions attempted", m.ExtractionsTotal.Load()},
		{"pricepatrol_extractions_failed_total", "Total per-source extractions failed", m.ExtractionsFailed.Load()},
		{"pricepatrol_sources_blocked_total", "Total extractions rejected by anti-automation", m.SourcesBlocked.Load()},
		{"pricepatrol_listings_extracted_total", "Total raw listings extracted", m.ListingsExtracted.Load()},
		{"pricepatrol_listings_normalized_total", "Total listings passing normalization", m.ListingsNormalized.Load()},
		{"pricepatrol_listings_dropped_total", "Total listings dropped by normalization", m.ListingsDropped.Load()},
		{"pricepatrol_alert_checks_total", "Total alert evaluations", m.AlertChecks.Load()},
		{"pricepatrol_alerts_triggered_total", "Total alerts triggered", m.AlertsTriggered.Load()},
		{"pricepatrol_price_cache_hits_total", "Total alert checks served from cache", m.PriceCacheHits.Load()},
		{"pricepatrol_pages_acquired_total", "Total rendered pages acquired", m.PagesAcquired.Load()},
		{"pricepatrol_proxy_rotations_total", "Total proxy rotations", m.ProxyRotations.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Snapshot returns all counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"jobs_created":        m.JobsCreated.Load(),
		"jobs_reused":         m.JobsReused.Load(),
		"jobs_completed":      m.JobsCompleted.Load(),
		"jobs_failed":         m.JobsFailed.Load(),
		"extractions_total":   m.ExtractionsTotal.Load(),
		"extractions_failed":  m.ExtractionsFailed.Load(),
		"sources_blocked":     m.SourcesBlocked.Load(),
		"listings_extracted":  m.ListingsExtracted.Load(),
		"listings_normalized": m.ListingsNormalized.Load(),
		"listings_dropped":    m.ListingsDropped.Load(),
		"alert_checks":        m.AlertChecks.Load(),
		"alerts_triggered":    m.AlertsTriggered.Load(),
		"price_cache_hits":    m.PriceCacheHits.Load(),
		"pages_acquired":      m.PagesAcquired.Load(),
		"proxy_rotations":     m.ProxyRotations.Load(),
	}
}
