// Package alerts periodically re-checks price watches against live
// sources and fires notifications when a target price is met.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"pricepatrol/internal/config"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/sources"
	"pricepatrol/internal/store"
	"pricepatrol/internal/types"
)

// Notifier delivers a triggered alert. Delivery transports plug in here;
// the default implementation just logs.
type Notifier interface {
	Notify(ctx context.Context, alert *types.Alert, observed store.CachedPrice) error
}

// LogNotifier writes triggered alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, alert *types.Alert, observed store.CachedPrice) error {
	n.Logger.Info("price alert triggered",
		"alert_id", alert.ID,
		"product", alert.ProductName,
		"target", alert.TargetPrice,
		"observed", observed.Price,
		"source", observed.Source,
	)
	return nil
}

// Evaluator runs one pass over all untriggered alerts, in concurrent
// batches with a configurable pause between them.
type Evaluator struct {
	cfg      *config.AlertsConfig
	registry *sources.Registry
	alerts   store.AlertStore
	cache    store.PriceCache
	metrics  *observability.Metrics
	notifier Notifier
	logger   *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEvaluator wires an Evaluator. A nil cache disables lookback caching; a
// nil notifier falls back to logging.
func NewEvaluator(
	cfg *config.AlertsConfig,
	registry *sources.Registry,
	alerts store.AlertStore,
	cache store.PriceCache,
	metrics *observability.Metrics,
	notifier Notifier,
	logger *slog.Logger,
) *Evaluator {
	log := logger.With("component", "alert_evaluator")
	if cache == nil {
		cache = store.NopCache{}
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: log}
	}
	return &Evaluator{
		cfg:      cfg,
		registry: registry,
		alerts:   alerts,
		cache:    cache,
		metrics:  metrics,
		notifier: notifier,
		logger:   log,
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

// RunOnce evaluates every untriggered alert. Alerts inside a batch run
// concurrently; the inter-batch delay is skipped after the final batch.
func (e *Evaluator) RunOnce(ctx context.Context) error {
	pending, err := e.alerts.ListAlerts(ctx, true)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	e.logger.Info("alert pass starting", "alerts", len(pending), "batch_size", e.cfg.BatchSize)

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(alert types.Alert) {
				defer wg.Done()
				e.check(ctx, &alert)
			}(pending[i])
		}
		wg.Wait()

		if end < len(pending) {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// check evaluates one alert. Errors are logged and isolated; the pass
// continues regardless.
func (e *Evaluator) check(ctx context.Context, alert *types.Alert) {
	e.metrics.AlertChecks.Add(1)
	log := e.logger.With("alert_id", alert.ID, "product", alert.ProductName)

	observed, err := e.observePrice(ctx, alert)
	if err != nil {
		log.Warn("price check failed", "error", err)
		return
	}

	alert.RecordPrice(types.PricePoint{
		Price:  observed.Price,
		Source: observed.Source,
		At:     observed.CheckedAt,
	})

	if !alert.IsTriggered && observed.Price <= alert.TargetPrice {
		now := time.Now()
		alert.IsTriggered = true
		alert.TriggeredAt = &now
		e.metrics.AlertsTriggered.Add(1)
		if err := e.notifier.Notify(ctx, alert, *observed); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}

	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		log.Warn("alert persist failed", "error", err)
	}
}

// observePrice resolves the current best price for the watched product,
// consulting the lookback cache first.
func (e *Evaluator) observePrice(ctx context.Context, alert *types.Alert) (*store.CachedPrice, error) {
	key := store.PriceKey(alert.ProductName, alert.Stores)
	if alert.ProductURL != "" {
		key = "price:url:" + alert.ProductURL
	}

	if cached, err := e.cache.GetPrice(ctx, key); err == nil {
		e.metrics.PriceCacheHits.Add(1)
		return cached, nil
	} else if !errors.Is(err, types.ErrCacheMiss) {
		e.logger.Warn("price cache read failed", "error", err)
	}

	var observed *store.CachedPrice
	var err error
	if alert.ProductURL != "" {
		observed, err = e.checkDirect(ctx, alert)
	} else {
		observed, err = e.checkSearch(ctx, alert)
	}
	if err != nil {
		return nil, err
	}

	if cerr := e.cache.SetPrice(ctx, key, *observed, e.cfg.CacheLookback); cerr != nil {
		e.logger.Warn("price cache write failed", "error", cerr)
	}
	return observed, nil
}

// checkDirect resolves the product's exact page through the adapter whose
// catalog hosts it.
func (e *Evaluator) checkDirect(ctx context.Context, alert *types.Alert) (*store.CachedPrice, error) {
	adapter, err := e.adapterForURL(alert.ProductURL)
	if err != nil {
		return nil, err
	}
	raw, err := adapter.ExtractDetail(ctx, alert.ProductURL)
	if err != nil {
		return nil, fmt.Errorf("detail check on %s: %w", adapter.Name(), err)
	}
	return &store.CachedPrice{
		Price:     raw.Price,
		Source:    adapter.Name(),
		Title:     raw.Title,
		CheckedAt: time.Now(),
	}, nil
}

// checkSearch runs the product name through every watched source and takes
// the minimum resolved price.
func (e *Evaluator) checkSearch(ctx context.Context, alert *types.Alert) (*store.CachedPrice, error) {
	var best *store.CachedPrice
	var lastErr error

	for _, adapter := range e.registry.All() {
		if !alert.WatchesStore(adapter.Name()) {
			continue
		}
		raws, err := adapter.Extract(ctx, &sources.ExtractInput{Query: alert.ProductName})
		if err != nil {
			lastErr = err
			e.logger.Warn("alert search failed", "source", adapter.Name(), "error", err)
			continue
		}
		for _, raw := range raws {
			if raw.Price <= 0 {
				continue
			}
			if best == nil || raw.Price < best.Price {
				best = &store.CachedPrice{
					Price:     raw.Price,
					Source:    adapter.Name(),
					Title:     raw.Title,
					CheckedAt: time.Now(),
				}
			}
		}
	}
	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, types.ErrNoPriceResolved
	}
	return best, nil
}

// adapterForURL matches a product URL to a registered adapter by comparing
// registrable hosts against each adapter's search host.
func (e *Evaluator) adapterForURL(productURL string) (sources.Adapter, error) {
	u, err := url.Parse(productURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: bad product URL %q", types.ErrUnknownSource, productURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	for _, adapter := range e.registry.All() {
		su, err := url.Parse(adapter.BuildQueryURL("probe", ""))
		if err != nil {
			continue
		}
		shost := strings.TrimPrefix(strings.ToLower(su.Host), "www.")
		if host == shost || strings.HasSuffix(host, "."+shost) {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("%w: no adapter for host %s", types.ErrUnknownSource, host)
}
