package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pricepatrol/internal/alerts"
	"pricepatrol/internal/api"
	"pricepatrol/internal/browser"
	"pricepatrol/internal/config"
	"pricepatrol/internal/fetch"
	"pricepatrol/internal/jobs"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/proxy"
	"pricepatrol/internal/ratelimit"
	"pricepatrol/internal/sources"
	"pricepatrol/internal/store"
)

var (
	cfgFile string
	verbose bool
	addr    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pricepatrol",
		Short: "PricePatrol — asynchronous price comparison across Indian retail catalogs",
		Long: `PricePatrol scrapes Amazon, Flipkart, Croma, and Reliance Digital
through a shared headless browser, normalizes and ranks what it finds,
and serves results over an asynchronous job API.

Features:
  • Per-source rate governing with jittered sliding windows
  • Rotating egress proxy pool with fail-open recovery
  • Stealth-patched headless Chromium with bounded page admission
  • Relevance ranking with accessory and price-floor penalties
  • Price-drop alerts evaluated on a wall-clock schedule
  • Optional handoff of scraping to a separate worker process`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(checkAlertsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serveCmd runs the full service: API, orchestrator, and alert scheduler.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, job orchestrator, and alert evaluator",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	return runService(false)
}

// workerCmd runs only the scrape-execution endpoint, for deployments that
// split the API front end from the browser host.
func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the scrape worker endpoint only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(true)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runService(workerMode bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := configuredLogger(&cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := deps.metrics
	orchOpts := []jobs.Option{jobs.WithCatalog(deps.catalog)}
	if !workerMode && cfg.Worker.URL != "" {
		orchOpts = append(orchOpts, jobs.WithRemote(jobs.NewWorkerClient(&cfg.Worker, logger)))
	}
	orchestrator := jobs.NewOrchestrator(cfg, deps.registry, deps.governor, deps.jobs, metrics, logger, orchOpts...)

	if !workerMode {
		evaluator := alerts.NewEvaluator(&cfg.Alerts, deps.registry, deps.alerts, deps.cache, metrics, nil, logger)
		scheduler := alerts.NewScheduler(evaluator, cfg.Alerts.Interval, logger)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	var serverOpts []api.ServerOption
	if workerMode {
		serverOpts = append(serverOpts, api.AsWorker())
	}
	server := api.NewServer(cfg, orchestrator, deps.alerts, metrics, logger, serverOpts...)
	return server.ListenAndServe(ctx)
}

// checkAlertsCmd runs a single evaluator pass and exits, for cron-style
// deployments without a resident process.
func checkAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-alerts",
		Short: "Run one alert evaluation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger := configuredLogger(&cfg.Logging)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, cleanup, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			evaluator := alerts.NewEvaluator(&cfg.Alerts, deps.registry, deps.alerts, deps.cache, deps.metrics, nil, logger)
			return evaluator.RunOnce(ctx)
		},
	}
}

// pipelineDeps are the shared services every command variant wires.
type pipelineDeps struct {
	registry *sources.Registry
	governor *ratelimit.Governor
	jobs     store.JobStore
	alerts   store.AlertStore
	catalog  store.CatalogStore
	cache    store.PriceCache
	metrics  *observability.Metrics
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipelineDeps, func(), error) {
	metrics := observability.NewMetrics(logger)
	pool := proxy.NewPool(cfg.Proxy.URLs, logger)
	manager := browser.NewManager(&cfg.Browser, pool, logger)
	manager.SetMetrics(metrics)
	httpClient := fetch.NewClient(cfg.Browser.UserAgent, cfg.Browser.NavigationTimeout, logger)

	registry := sources.NewDefaultRegistry(sources.Deps{
		Browser: manager,
		HTTP:    httpClient,
		Scrape:  &cfg.Scrape,
		Nav:     &cfg.Browser,
		Logger:  logger,
	})

	mongo, err := store.NewMongo(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb: %w", err)
	}

	var cache store.PriceCache = store.NopCache{}
	var redisClose func()
	if cfg.Store.RedisURL != "" {
		rc, err := store.NewRedisCache(ctx, cfg.Store.RedisURL, logger)
		if err != nil {
			mongo.Close(context.Background())
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		cache = rc
		redisClose = func() { rc.Close() }
	}

	cleanup := func() {
		if err := manager.Close(); err != nil {
			logger.Warn("browser close failed", "error", err)
		}
		if redisClose != nil {
			redisClose()
		}
		if err := mongo.Close(context.Background()); err != nil {
			logger.Warn("mongodb close failed", "error", err)
		}
	}

	return &pipelineDeps{
		registry: registry,
		governor: ratelimit.NewGovernor(&cfg.Rate, logger),
		jobs:     mongo,
		alerts:   mongo,
		catalog:  mongo,
		cache:    cache,
		metrics:  metrics,
	}, cleanup, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PricePatrol %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Server:\n")
			fmt.Printf("  Addr:                 %s\n", cfg.Server.Addr)
			fmt.Printf("Browser:\n")
			fmt.Printf("  Max Concurrent Pages: %d\n", cfg.Browser.MaxConcurrentPages)
			fmt.Printf("  Launch Retries:       %d\n", cfg.Browser.LaunchRetries)
			fmt.Printf("  Navigation Timeout:   %s\n", cfg.Browser.NavigationTimeout)
			fmt.Printf("Proxy:\n")
			fmt.Printf("  Pool Size:            %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("Rate:\n")
			fmt.Printf("  Default Per Minute:   %d\n", cfg.Rate.DefaultPerMinute)
			for source, n := range cfg.Rate.PerMinute {
				fmt.Printf("  %-21s %d\n", source+":", n)
			}
			fmt.Printf("Scrape:\n")
			fmt.Printf("  Tier:                 %s\n", cfg.Scrape.Tier)
			fmt.Printf("  Extraction Timeout:   %s\n", cfg.Scrape.ExtractionTimeout)
			fmt.Printf("  Job TTL:              %s\n", cfg.Scrape.JobTTL)
			fmt.Printf("  Reuse Window:         %s\n", cfg.Scrape.ReuseWindow)
			fmt.Printf("Rank:\n")
			fmt.Printf("  Min Score:            %d\n", cfg.Rank.MinScore)
			fmt.Printf("  Price Ceiling:        %.0f\n", cfg.Rank.PriceCeiling)
			fmt.Printf("Store:\n")
			fmt.Printf("  Mongo URI:            %s\n", cfg.Store.MongoURI)
			fmt.Printf("  Mongo Database:       %s\n", cfg.Store.MongoDatabase)
			fmt.Printf("  Redis URL:            %s\n", redacted(cfg.Store.RedisURL))
			fmt.Printf("Worker:\n")
			fmt.Printf("  URL:                  %s\n", cfg.Worker.URL)
			fmt.Printf("Alerts:\n")
			fmt.Printf("  Interval:             %s\n", cfg.Alerts.Interval)
			fmt.Printf("  Batch Size:           %d\n", cfg.Alerts.BatchSize)
			fmt.Printf("  Batch Delay:          %s\n", cfg.Alerts.BatchDelay)
			fmt.Printf("  Cache Lookback:       %s\n", cfg.Alerts.CacheLookback)
			return nil
		},
	}
}

func redacted(u string) string {
	if u == "" {
		return "(disabled)"
	}
	if i := strings.Index(u, "@"); i >= 0 {
		return "redis://***" + u[i:]
	}
	return u
}

// configuredLogger builds the process logger from the logging section; the
// --verbose flag forces debug level regardless.
func configuredLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
