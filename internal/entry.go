// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commonplace/internal/api"
	"github.com/starford/commonplace/internal/codec"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/mcpserver"
	"github.com/starford/commonplace/internal/notestore"
	"github.com/starford/commonplace/internal/sse"
	"github.com/starford/commonplace/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	dbPath := cfg.SQLite.ResolvePath(cfg.Store.Path)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("layout", cfg.Store.Layout),
		slog.String("sqlite_path", dbPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := buildStore(cfg, dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initial rebuild so the index reflects whatever is on disk.
	report, err := store.Rebuild()
	if err != nil {
		logger.Warn("initial rebuild failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial rebuild complete",
			slog.Int("indexed", report.Indexed),
			slog.Int("failures", len(report.Failures)))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API router.
	apiRouter := api.NewRouter(store, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		err := store.Watch(gCtx, cfg.Store.Path, logger, func(kind, id string) {
			broker.PublishNoteEvent(kind, id)
		})
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// buildStore wires the file provider, SQLite index and codec into a
// note store according to the configuration.
func buildStore(cfg *Config, dbPath string, logger *slog.Logger) (*notestore.Store, error) {
	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	layout, err := storage.ParseLayout(cfg.Store.Layout)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	db, err := index.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	return notestore.New(files, layout, db, codec.New(time.Now), logger), nil
}

// RunMCP builds the store from the configuration and serves MCP tools
// over stdio. Logs go to stderr so stdout stays clean for the protocol.
func RunMCP(cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	dbPath := cfg.SQLite.ResolvePath(cfg.Store.Path)

	store, err := buildStore(cfg, dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Rebuild(); err != nil {
		logger.Warn("initial rebuild failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(store).ServeStdio()
}
