package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/cache"
	"github.com/dataglass/pattern-sentry/internal/config"
	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/importer"
	"github.com/dataglass/pattern-sentry/internal/logger"
	"github.com/dataglass/pattern-sentry/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON)")
		batchSize  = flag.Int("batch-size", 500, "Batch size for processing")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		dryRun     = flag.Bool("dry-run", false, "Dry run - don't write patterns or feedback")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --dry-run\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Pattern-Sentry dataset importer",
		zap.String("config", *configPath),
		zap.String("input", *inputFile))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling import...")
		cancel()
	}()

	// Initialize services
	svcs, err := initializeServices(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer svcs.cleanup()

	eng := engine.New(svcs.patternStore, svcs.accuracyCache, nil, cfg.Engine, log.Logger)

	pipeline := importer.NewPipeline(eng, &importer.Config{
		BatchSize:      *batchSize,
		WorkerCount:    *workers,
		ValidateData:   true,
		ProgressReport: 1000,
		DryRun:         *dryRun,
	}, log.Logger)

	result, err := pipeline.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Dataset import failed", zap.Error(err))
	}

	log.Info("Dataset import finished",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("patterns_created", result.PatternsCreated),
		zap.Int64("feedback_recorded", result.FeedbackRecorded),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("duration", result.Duration))

	if result.ProcessedFailed > 0 {
		log.Warn("Some records could not be imported",
			zap.Int64("processed_failed", result.ProcessedFailed),
			zap.Strings("errors", result.Errors))
	}
}

// services holds all initialized backing services
type services struct {
	patternStore  store.Store
	accuracyCache *cache.AccuracyCache
}

func (s *services) cleanup() {
	if s.patternStore != nil {
		s.patternStore.Close()
	}
	if s.accuracyCache != nil {
		s.accuracyCache.Close()
	}
}

func initializeServices(cfg *config.Config, log *zap.Logger) (*services, error) {
	svcs := &services{}

	if cfg.Store.Postgres.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(&cfg.Store.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to pattern store: %w", err)
		}
		svcs.patternStore = pgStore
	} else {
		log.Warn("No database configured, importing into in-memory store")
		svcs.patternStore = store.NewMemoryStore()
	}

	if cfg.Cache.Enabled {
		accuracyCache, err := cache.NewAccuracyCache(&cfg.Cache.Redis, log)
		if err != nil {
			svcs.cleanup()
			return nil, fmt.Errorf("failed to connect to accuracy cache: %w", err)
		}
		svcs.accuracyCache = accuracyCache
	}

	return svcs, nil
}
