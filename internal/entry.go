// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/panes/internal/api"
	"github.com/starford/panes/internal/assets"
	"github.com/starford/panes/internal/compile"
	"github.com/starford/panes/internal/index"
	"github.com/starford/panes/internal/mcpserver"
	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/postservice"
	"github.com/starford/panes/internal/resolve"
	"github.com/starford/panes/internal/sse"
	"github.com/starford/panes/internal/storage"
)

// core holds the components shared by the HTTP and MCP entry points.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	store    storage.Provider
	db       *index.DB
	resolver *resolve.Resolver
	pipeline *compile.Pipeline
	posts    *postservice.Service
	assets   *assets.Store
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens storage and the index and runs the initial sync. The
// caller closes core.db.
func bootstrap(app *application) (*core, error) {
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("post_path_prefix", cfg.Site.PostPathPrefix),
		slog.Int("apps", len(cfg.Resolver.Registry.Apps)),
		slog.Int("artifacts", len(cfg.Resolver.Registry.Artifacts)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Content.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	resolver := resolve.New(cfg.Resolver.Options(cfg.Site))
	pipeline := compile.New(resolver, compile.Options{
		UnsafeHTML: cfg.Site.UnsafeHTML,
		Sanitize:   cfg.Site.Sanitize,
		Logger:     logger,
	})

	if err := index.Sync(db, store, pipeline, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &core{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		db:       db,
		resolver: resolver,
		pipeline: pipeline,
		posts:    postservice.NewService(store, db, pipeline),
		assets:   assets.NewStore(store),
	}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// sessionHost publishes pane events on the SSE topic named after the
// session id.
func sessionHost(broker *sse.Broker) func(id string) pane.Host {
	return func(id string) pane.Host {
		return pane.HostFunc(func(ev pane.Event) {
			broker.Publish(sse.Event{Type: string(ev.Type), Topic: id, Data: ev})
		})
	}
}

// newHTTPHandler assembles the root router: health checks, the /api
// surface and the public site routes.
func newHTTPHandler(c *core, sessions *pane.Sessions, broker *sse.Broker) http.Handler {
	svcs := api.Services{
		Posts:    c.posts,
		Sessions: sessions,
		Resolver: c.resolver,
		Assets:   c.assets,
	}

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
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(svcs, c.cfg.Auth.AuthEnabled(), c.cfg.Auth.Token, broker))
	api.SiteRoutes(r, svcs, c.cfg.Panes.TrustedOrigins)

	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer c.db.Close()

	cfg := c.cfg
	logger := c.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sessions := pane.NewSessions(c.resolver, sessionHost(broker),
		pane.WithTrustedOrigins(cfg.Panes.TrustedOrigins...),
		pane.WithHoverDelay(cfg.Panes.HoverDelay),
		pane.WithHideGrace(cfg.Panes.HideGrace),
		pane.WithLogger(logger),
	)
	defer sessions.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(c, sessions, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := index.Watch(gCtx, c.db, c.store, c.pipeline, cfg.Content.Path, logger, broker.PublishPostEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
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
		defer signal.Stop(quit)

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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully", slog.Int("sessions", sessions.Len()))
	return nil
}

// errShutdown cancels the errgroup context once the server has been asked
// to stop, so the watcher exits too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to the writer set with
// WithLogOutput; stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer c.db.Close()

	srv := mcpserver.New(c.posts, c.resolver, c.assets)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := index.Watch(gCtx, c.db, c.store, c.pipeline, c.cfg.Content.Path, c.logger, nil); err != nil {
			c.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		c.logger.Info("Serving MCP over stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}
