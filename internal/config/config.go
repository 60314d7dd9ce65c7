package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for pricepatrol.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Rate    RateConfig    `mapstructure:"rate"    yaml:"rate"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"  yaml:"scrape"`
	Rank    RankConfig    `mapstructure:"rank"    yaml:"rank"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"`
	Worker  WorkerConfig  `mapstructure:"worker"  yaml:"worker"`
	Alerts  AlertsConfig  `mapstructure:"alerts"  yaml:"alerts"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// BrowserConfig controls the shared rendering engine.
type BrowserConfig struct {
	// MaxConcurrentPages bounds the page-admission queue. It tracks the
	// number of concurrent requesters, not the number of sources.
	MaxConcurrentPages int           `mapstructure:"max_concurrent_pages" yaml:"max_concurrent_pages"`
	LaunchRetries      int           `mapstructure:"launch_retries"       yaml:"launch_retries"`
	LaunchRetryDelay   time.Duration `mapstructure:"launch_retry_delay"   yaml:"launch_retry_delay"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"   yaml:"navigation_timeout"`
	UserAgent          string        `mapstructure:"user_agent"           yaml:"user_agent"`
	ViewportWidth      int           `mapstructure:"viewport_width"       yaml:"viewport_width"`
	ViewportHeight     int           `mapstructure:"viewport_height"      yaml:"viewport_height"`
}

// ProxyConfig controls the egress identity pool.
type ProxyConfig struct {
	URLs []string `mapstructure:"urls" yaml:"urls"`
}

// RateConfig controls per-source admission.
type RateConfig struct {
	// PerMinute maps source name to its requests-per-minute ceiling.
	PerMinute map[string]int `mapstructure:"per_minute" yaml:"per_minute"`
	// DefaultPerMinute applies to sources without an explicit ceiling.
	DefaultPerMinute int `mapstructure:"default_per_minute" yaml:"default_per_minute"`
}

// Deployment tiers. Standard fans sources out concurrently; constrained
// runs them sequentially to bound memory on small hosts.
const (
	TierStandard    = "standard"
	TierConstrained = "constrained"
)

// ScrapeConfig controls extraction and the job lifecycle.
type ScrapeConfig struct {
	// Tier is "standard" (sources fan out concurrently) or "constrained"
	// (sources run strictly sequentially to bound memory).
	Tier              string        `mapstructure:"tier"               yaml:"tier"`
	ExtractionTimeout time.Duration `mapstructure:"extraction_timeout" yaml:"extraction_timeout"`
	SettleDelayMin    time.Duration `mapstructure:"settle_delay_min"   yaml:"settle_delay_min"`
	SettleDelayMax    time.Duration `mapstructure:"settle_delay_max"   yaml:"settle_delay_max"`
	JobTTL            time.Duration `mapstructure:"job_ttl"            yaml:"job_ttl"`
	// ReuseWindow is how long an identical query reuses an existing job.
	ReuseWindow time.Duration `mapstructure:"reuse_window" yaml:"reuse_window"`
}

// RankConfig controls ranking thresholds.
type RankConfig struct {
	MinScore     int     `mapstructure:"min_score"     yaml:"min_score"`
	PriceCeiling float64 `mapstructure:"price_ceiling" yaml:"price_ceiling"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
	RedisURL      string `mapstructure:"redis_url"      yaml:"redis_url"`
}

// WorkerConfig controls handoff to a remote worker process.
type WorkerConfig struct {
	URL    string `mapstructure:"url"    yaml:"url"`
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// AlertsConfig controls the periodic alert evaluator.
type AlertsConfig struct {
	Interval      time.Duration `mapstructure:"interval"       yaml:"interval"`
	BatchSize     int           `mapstructure:"batch_size"     yaml:"batch_size"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"    yaml:"batch_delay"`
	CacheLookback time.Duration `mapstructure:"cache_lookback" yaml:"cache_lookback"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Browser: BrowserConfig{
			MaxConcurrentPages: 4,
			LaunchRetries:      3,
			LaunchRetryDelay:   2 * time.Second,
			NavigationTimeout:  25 * time.Second,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ViewportWidth:      1280,
			ViewportHeight:     800,
		},
		Rate: RateConfig{
			DefaultPerMinute: 10,
			PerMinute:        map[string]int{},
		},
		Scrape: ScrapeConfig{
			Tier:              TierStandard,
			ExtractionTimeout: 45 * time.Second,
			SettleDelayMin:    500 * time.Millisecond,
			SettleDelayMax:    1500 * time.Millisecond,
			JobTTL:            time.Hour,
			ReuseWindow:       5 * time.Minute,
		},
		Rank: RankConfig{
			MinScore:     -20,
			PriceCeiling: 10_000_000,
		},
		Store: StoreConfig{
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "pricepatrol",
			RedisURL:      "",
		},
		Alerts: AlertsConfig{
			Interval:      30 * time.Minute,
			BatchSize:     5,
			BatchDelay:    10 * time.Second,
			CacheLookback: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
