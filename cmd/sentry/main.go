package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/cache"
	"github.com/raaihank/pii-sentry/internal/config"
	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/logger"
	"github.com/raaihank/pii-sentry/internal/match"
	"github.com/raaihank/pii-sentry/internal/rules"
	"github.com/raaihank/pii-sentry/internal/scan"
	"github.com/raaihank/pii-sentry/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("PII-Sentry %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PII-Sentry",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Create rule store, loading persisted rules when configured
	store := rules.NewStore(log.WithComponent("rules").Logger)

	var repo *rules.Repository
	if cfg.Rules.Persist {
		repo, err = rules.NewRepository(&cfg.Rules.Database, log.WithComponent("rules.db").Logger)
		if err != nil {
			log.Fatal("Failed to connect to rule database", zap.Error(err))
		}
		defer repo.Close()

		persisted, err := repo.LoadAll(context.Background())
		if err != nil {
			log.Fatal("Failed to load persisted rules", zap.Error(err))
		}
		if len(persisted) > 0 {
			if err := store.Replace(persisted); err != nil {
				log.Fatal("Persisted rules failed validation", zap.Error(err))
			}
			log.Info("Loaded persisted rules", zap.Int("count", len(persisted)))
		}
	}

	// Optional inference payload cache. Failure to connect is not fatal.
	var payloadCache scan.PayloadCache
	var redisCache *cache.PayloadCache
	if cfg.Cache.Enabled {
		redisCache, err = cache.NewPayloadCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Cache unavailable, continuing without it", zap.Error(err))
		} else {
			payloadCache = redisCache
			defer redisCache.Close()
		}
	}

	factory := inference.NewFactory(cfg.Engines.Cloud.APIKey, cfg.Engines.Timeout, log.WithComponent("inference").Logger)
	matcher := match.New(log.WithComponent("match").Logger)
	orchestrator := scan.New(store, matcher, factory, payloadCache, log.WithComponent("scan").Logger)

	srv := server.New(server.Options{
		Config:       cfg,
		Logger:       log,
		Store:        store,
		Repo:         repo,
		Orchestrator: orchestrator,
		Factory:      factory,
	})

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
