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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/funmi/casi-export/internal/api"
	"github.com/funmi/casi-export/internal/artifact"
	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/sse"
	"github.com/funmi/casi-export/internal/store"
	"github.com/funmi/casi-export/internal/trigger"
)

func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// openStore opens the document store and the export service on top of it.
// The Drive folder is only attached when credentials are configured; a
// publishing rebuild without it fails its precondition check.
func (a *application) openStore(ctx context.Context, logger *slog.Logger, extra ...export.Option) (*store.DB, *export.Service, error) {
	cfg := a.config

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	local, err := artifact.NewFS(cfg.Export.OutDir)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init output dir: %w", err)
	}

	opts := []export.Option{
		export.WithLocal(local),
		export.WithLogger(logger),
	}
	if cfg.Drive.Configured() {
		remote, err := artifact.NewDrive(ctx, cfg.Drive.Credentials())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init drive: %w", err)
		}
		opts = append(opts, export.WithRemote(remote))
	}
	opts = append(opts, extra...)

	return db, export.NewService(cfg.RebuildConfig(), db, opts...), nil
}

// Run starts the export server: HTTP API, submission inbox and nightly job.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("out_dir", cfg.Export.OutDir),
		slog.Bool("drive_configured", cfg.Drive.Configured()),
		slog.Bool("schedule_enabled", cfg.Schedule.Enabled),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := cfg.ValidateForRebuild(false); err != nil {
		logger.Warn("rebuilds will fail until secrets are configured", slog.String("error", err.Error()))
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	db, svc, err := app.openStore(ctx, logger, export.WithObserver(broker))
	if err != nil {
		return err
	}
	defer db.Close()

	apiRouter := api.NewRouter(svc, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		writes := trigger.NewWrites(db, svc, logger)
		g.Go(func() error {
			if err := trigger.WatchInbox(gCtx, cfg.Inbox.Path, writes, logger); err != nil {
				return fmt.Errorf("inbox watcher: %w", err)
			}
			return nil
		})
	}

	if cfg.Schedule.Enabled {
		nightly := trigger.NewNightly(svc, db, cfg.Schedule.Hour, loc, cfg.Schedule.Recent, logger)
		g.Go(func() error {
			return nightly.Run(gCtx)
		})
	}

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher and nightly job stop with
// the HTTP server.
var errShutdown = errors.New("shutdown")
