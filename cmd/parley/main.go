// Package main provides the parley worker entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/parley-labs/parley/internal/config"
	db "github.com/parley-labs/parley/internal/db/gorm"
	"github.com/parley-labs/parley/internal/engine"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP port (default: from config)")
	dbPath := flag.String("db", "", "SQLite database path (default: ~/.parley/parley.db)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.WorkerPort = *port
	}
	applyLogLevel(cfg, *debug)

	path := config.DBPath()
	if *dbPath != "" {
		path = *dbPath
	}

	store, err := db.NewStore(db.Config{
		Path:     path,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open database")
	}
	defer store.Close()

	client, err := llm.NewGeminiClient(llm.GeminiConfig{
		BaseURL:         cfg.BackendBaseURL,
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Timeout:         cfg.GenerateTimeout(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generation client")
	}

	eng := engine.New(engine.Options{
		Store:         store,
		Backend:       llm.NewBackend(client),
		PublicBaseURL: cfg.PublicBaseURL,
	})

	svc := worker.New(cfg, store, eng, Version)

	// Reload settings when the config file changes: the log level takes
	// effect immediately, and per-request values such as the generation
	// timeout are read through config.Get. Port and DB path changes
	// still need a restart.
	cfgWatcher, err := config.NewWatcher(func(updated *config.Config) {
		applyLogLevel(updated, *debug)
		log.Info().Str("logLevel", updated.LogLevel).Msg("Settings reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else {
		if err := cfgWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Settings watcher failed to start")
		}
		defer cfgWatcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(svc.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Worker exited with error")
	}
}

func applyLogLevel(cfg *config.Config, debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
}
