package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dataset-explorer/backend/internal/api"
	"github.com/dataset-explorer/backend/internal/catalog"
	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/explorer"
	"github.com/dataset-explorer/backend/internal/fetcher"
	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/provider"
	"github.com/dataset-explorer/backend/internal/remote"
)

func main() {
	// Setup Logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logger.WithField("service", "dataset-explorer")

	// 1. Config
	cfg, err := loadConfig()
	if err != nil {
		entry.Fatalf("Failed to load config: %v", err)
	}
	configureLogger(logger, cfg.Log, entry)

	entry.Info("Starting Dataset Explorer API Service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Catalog
	cat := catalog.NewMemoryCatalog()
	defer cat.Close()
	n, err := catalog.LoadDirectory(ctx, cat, cfg.Catalog.DataDir, cfg.Catalog.LoadConcurrency, entry.WithField("component", "catalog"))
	if err != nil {
		entry.Fatalf("Failed to load datasets: %v", err)
	}
	entry.WithField("dir", cfg.Catalog.DataDir).Infof("Pre-loaded %d datasets", n)

	// 3. Sessions
	sessions := explorer.NewSessions(profile.New(), entry.WithField("component", "sessions"))

	// 4. Remote services and LLM
	client := remote.NewClient(cfg.Remote, entry.WithField("component", "remote"))
	if cfg.Remote.QueryURL == "" && cfg.Remote.AnalysisURL == "" {
		entry.Info("Remote services not configured, answering locally")
	}

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		entry.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	if llm == nil {
		entry.Info("No LLM provider configured, using extractive answers")
	}

	// 5. Explorer
	ex := explorer.New(client, client, llm, explorer.Options{
		TopN:           cfg.Search.TopN,
		ContextResults: cfg.Search.ContextResults,
		RemoteTimeout:  cfg.Remote.Timeout,
		RewriteQueries: cfg.LLM.RewriteQueries,
	}, entry.WithField("component", "explorer"))

	// 6. API Server
	f := fetcher.NewFetcher(cfg.Fetcher, entry.WithField("component", "fetcher"))
	server := api.NewServer(cat, sessions, ex, f, cfg.Server, entry.WithField("component", "api"))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		entry.Infof("Dataset Explorer API ready on port %d", cfg.Server.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			entry.Fatal(err)
		}
	case <-ctx.Done():
		entry.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			entry.WithError(err).Error("Graceful shutdown failed")
		}
	}
}

// loadConfig reads EXPLORER_CONFIG when set, otherwise defaults plus environment.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("EXPLORER_CONFIG"); path != "" {
		return config.LoadFile(path)
	}
	cfg := config.Load()
	return cfg, cfg.Validate()
}

func configureLogger(logger *logrus.Logger, cfg config.LogConfig, entry *logrus.Entry) {
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		entry.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
