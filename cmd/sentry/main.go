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

	"github.com/dataglass/pattern-sentry/internal/cache"
	"github.com/dataglass/pattern-sentry/internal/config"
	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/events"
	"github.com/dataglass/pattern-sentry/internal/logger"
	"github.com/dataglass/pattern-sentry/internal/server"
	"github.com/dataglass/pattern-sentry/internal/store"
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
		fmt.Printf("Pattern-Sentry %s (commit: %s, built: %s)\n", version, commit, date)
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
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Pattern-Sentry",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Select the pattern store: Postgres when configured, in-memory otherwise
	var patternStore store.Store
	if cfg.Store.Postgres.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(&cfg.Store.Postgres, log.Logger)
		if err != nil {
			log.Fatal("Failed to connect to pattern store", zap.Error(err))
		}
		patternStore = pgStore
	} else {
		log.Warn("No database configured, patterns will not survive restarts")
		patternStore = store.NewMemoryStore()
	}
	defer patternStore.Close()

	// Optional accuracy snapshot cache
	var accuracyCache *cache.AccuracyCache
	if cfg.Cache.Enabled {
		accuracyCache, err = cache.NewAccuracyCache(&cfg.Cache.Redis, log.Logger)
		if err != nil {
			log.Fatal("Failed to connect to accuracy cache", zap.Error(err))
		}
		defer accuracyCache.Close()
	}

	// Optional WebSocket event hub for dashboards
	var hub *events.Hub
	if cfg.Events.Enabled {
		hub = events.NewHub(&cfg.Events.Broadcast, log.Logger)
	}

	eng := engine.New(patternStore, accuracyCache, hub, cfg.Engine, log.Logger)

	srv := server.New(cfg, eng, hub, log)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Reload works for logging level and broadcast toggles; store and port
	// changes need a restart
	if err := config.Watch(cfg, func(updated *config.Config) {
		log.Info("Configuration reloaded", zap.Int("port", updated.Server.Port))
	}); err != nil {
		log.Warn("Configuration watching disabled", zap.Error(err))
	}

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
