package config

import (
	"fmt"
	"net/url"
)

// Validate checks a Config for invalid or inconsistent values.
func Validate(cfg *Config) error {
	if cfg.Browser.MaxConcurrentPages < 1 {
		return fmt.Errorf("browser.max_concurrent_pages must be >= 1, got %d", cfg.Browser.MaxConcurrentPages)
	}
	if cfg.Browser.LaunchRetries < 1 {
		return fmt.Errorf("browser.launch_retries must be >= 1, got %d", cfg.Browser.LaunchRetries)
	}
	if cfg.Rate.DefaultPerMinute < 1 {
		return fmt.Errorf("rate.default_per_minute must be >= 1, got %d", cfg.Rate.DefaultPerMinute)
	}
	for source, n := range cfg.Rate.PerMinute {
		if n < 1 {
			return fmt.Errorf("rate.per_minute[%s] must be >= 1, got %d", source, n)
		}
	}
	switch cfg.Scrape.Tier {
	case TierStandard, TierConstrained:
	default:
		return fmt.Errorf("scrape.tier must be %q or %q, got %q", TierStandard, TierConstrained, cfg.Scrape.Tier)
	}
	if cfg.Scrape.SettleDelayMax < cfg.Scrape.SettleDelayMin {
		return fmt.Errorf("scrape.settle_delay_max must be >= scrape.settle_delay_min")
	}
	if cfg.Scrape.JobTTL <= 0 {
		return fmt.Errorf("scrape.job_ttl must be positive")
	}
	if cfg.Rank.PriceCeiling <= 0 {
		return fmt.Errorf("rank.price_ceiling must be positive")
	}
	if cfg.Alerts.BatchSize < 1 {
		return fmt.Errorf("alerts.batch_size must be >= 1, got %d", cfg.Alerts.BatchSize)
	}
	for _, raw := range cfg.Proxy.URLs {
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", raw, err)
		}
	}
	if cfg.Worker.URL != "" {
		u, err := url.Parse(cfg.Worker.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("worker.url must be an absolute URL, got %q", cfg.Worker.URL)
		}
		if cfg.Worker.Secret == "" {
			return fmt.Errorf("worker.secret is required when worker.url is set")
		}
	}
	return nil
}

// SourceLimit returns the per-minute ceiling for a source, falling back to
// the default ceiling.
func (c *RateConfig) SourceLimit(source string) int {
	if n, ok := c.PerMinute[source]; ok {
		return n
	}
	return c.DefaultPerMinute
}
