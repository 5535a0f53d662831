package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"testforge/internal/analyzer"
	"testforge/internal/api"
	"testforge/internal/autofix"
	"testforge/internal/config"
	"testforge/internal/ledger"
	"testforge/internal/monitor"
	"testforge/internal/orchestrator"
	"testforge/internal/scoring"
	"testforge/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Initialize database (optional, runs on the in-memory ledger without it)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, falling back to in-memory ledger")
		} else {
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				log.Fatal().Err(err).Msg("schema migration failed")
			}
		}
	}

	// Ledger: Postgres when a database is configured, in-memory otherwise.
	var led ledger.Ledger
	if db != nil {
		led = ledger.NewPostgresLedger(db.Pool())
	} else {
		mem := ledger.NewMemoryLedger()
		if err := mem.CreateAccount("dev", 1000); err != nil {
			log.Fatal().Err(err).Msg("creating dev account")
		}
		log.Info().Msg("using in-memory ledger with dev account (1000 credits)")
		led = mem
	}

	// Audit writer (buffered, reliable persistence of submissions)
	var store orchestrator.Store
	var auditWriter *storage.AuditWriter
	if db != nil {
		auditWriter = storage.NewAuditWriter(db, 10000)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
		store = auditWriter
	}

	// Analyzer registry: every category gets the built-in reachability
	// analyzer unless the deployment wires real ones.
	registry := analyzer.NewRegistry()
	reach := analyzer.NewReachabilityAnalyzer()
	for _, cat := range analyzer.Categories() {
		if err := registry.Register(cat, reach, analyzer.DefaultBaseCost(cat), analyzer.DefaultSuites(cat)); err != nil {
			log.Fatal().Err(err).Str("category", string(cat)).Msg("analyzer registration failed")
		}
	}

	// Auto-fix gate
	var gate *autofix.Gate
	if cfg.AutoFix.Enabled {
		gate = autofix.NewGate(&autofix.SuggestionFixer{}, cfg.AutoFix.AutoApplyThreshold)
	}

	scorer := scoring.NewScorer(cfg.Scoring.Penalties)
	scorer.RescoreAppliedFixes = cfg.Scoring.RescoreAppliedFixes

	thresholds := make(map[analyzer.Category]scoring.Thresholds, len(cfg.Scoring.CategoryThresholds))
	for cat, t := range cfg.Scoring.CategoryThresholds {
		thresholds[analyzer.Category(cat)] = t
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Registry:        registry,
		Ledger:          led,
		Store:           store,
		Gate:            gate,
		Scorer:          scorer,
		CostPolicy:      cfg.Economy,
		Thresholds:      thresholds,
		Defaults:        cfg.Scoring.Thresholds,
		Metrics:         metrics,
		AnalyzerTimeout: cfg.Orchestrator.AnalyzerTimeout,
		MaxTimeout:      cfg.Orchestrator.MaxTimeout,
		MaxConcurrent:   cfg.Orchestrator.MaxConcurrent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("building orchestrator")
	}

	// Create and start HTTP server
	server := api.NewServer(cfg, orch, led, db, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("autofix_enabled", gate != nil).
		Int("categories", len(registry.Categories())).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
