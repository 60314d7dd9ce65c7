package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("PRICEPATROL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pricepatrol")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".pricepatrol"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)

	v.SetDefault("browser.max_concurrent_pages", cfg.Browser.MaxConcurrentPages)
	v.SetDefault("browser.launch_retries", cfg.Browser.LaunchRetries)
	v.SetDefault("browser.launch_retry_delay", cfg.Browser.LaunchRetryDelay)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.viewport_width", cfg.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", cfg.Browser.ViewportHeight)

	v.SetDefault("rate.default_per_minute", cfg.Rate.DefaultPerMinute)

	v.SetDefault("scrape.tier", cfg.Scrape.Tier)
	v.SetDefault("scrape.extraction_timeout", cfg.Scrape.ExtractionTimeout)
	v.SetDefault("scrape.settle_delay_min", cfg.Scrape.SettleDelayMin)
	v.SetDefault("scrape.settle_delay_max", cfg.Scrape.SettleDelayMax)
	v.SetDefault("scrape.job_ttl", cfg.Scrape.JobTTL)
	v.SetDefault("scrape.reuse_window", cfg.Scrape.ReuseWindow)

	v.SetDefault("rank.min_score", cfg.Rank.MinScore)
	v.SetDefault("rank.price_ceiling", cfg.Rank.PriceCeiling)

	v.SetDefault("store.mongo_uri", cfg.Store.MongoURI)
	v.SetDefault("store.mongo_database", cfg.Store.MongoDatabase)
	v.SetDefault("store.redis_url", cfg.Store.RedisURL)

	v.SetDefault("worker.url", cfg.Worker.URL)
	v.SetDefault("worker.secret", cfg.Worker.Secret)

	v.SetDefault("alerts.interval", cfg.Alerts.Interval)
	v.SetDefault("alerts.batch_size", cfg.Alerts.BatchSize)
	v.SetDefault("alerts.batch_delay", cfg.Alerts.BatchDelay)
	v.SetDefault("alerts.cache_lookback", cfg.Alerts.CacheLookback)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
