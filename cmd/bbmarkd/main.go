package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/bbmark/pkg/rendercache"
	"github.com/CTAG07/bbmark/pkg/rulestore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the JSON config file")
	flag.Parse()

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(*configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			os.Exit(1)
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("bbmarkd has shut down.")
}

// run hosts the API server for one cycle and returns when it is shut down or
// restarted.
func run(configPath string, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version)

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if err = rulestore.SetupSchema(db); err != nil {
		return "", fmt.Errorf("failed to setup rule store schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		return "", fmt.Errorf("failed to setup auth schema: %w", err)
	}
	if err = setupStatsSchema(db); err != nil {
		return "", fmt.Errorf("failed to setup stats schema: %w", err)
	}

	cache := newCache(config.Cache, logger)
	if closer, ok := cache.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	server, err := NewServer(cm, logger, db, cache, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()

	if err = server.SeedRuleSets(context.Background(), config.Server.RulesDir); err != nil {
		logger.Error("Failed to seed rule sets", "error", err)
	}

	apiHttpServer := &http.Server{
		Addr:              config.Server.ApiAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return action, nil
}

// newCache connects the Redis render cache when enabled. An unreachable
// server is logged and renders go uncached until the next restart.
func newCache(cfg *CacheConfig, logger *slog.Logger) rendercache.Cache {
	if !cfg.Enabled {
		return rendercache.NopCache{}
	}
	c := rendercache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		rendercache.WithPrefix(cfg.Prefix),
		rendercache.WithTTL(time.Duration(cfg.TTLSec)*time.Second),
		rendercache.WithLogger(logger.With("component", "rendercache")),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		logger.Warn("Render cache unreachable, rendering without cache", "addr", cfg.RedisAddr, "error", err)
		_ = c.Close()
		return rendercache.NopCache{}
	}
	logger.Info("Render cache connected", "addr", cfg.RedisAddr)
	return c
}
