package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/polyview/polyview/pkg/fetch"
	"github.com/polyview/polyview/server/internal/api"
	"github.com/polyview/polyview/server/internal/auth"
	"github.com/polyview/polyview/server/internal/config"
	"github.com/polyview/polyview/server/internal/metrics"
	"github.com/polyview/polyview/server/internal/store"
	"github.com/polyview/polyview/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file holding secrets")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("polyviewd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"upstream", cfg.Upstream.Endpoint,
		"divisions", cfg.Loader.Divisions,
		"min_zoom", cfg.Loader.MinZoom,
		"batch_size", cfg.Loader.BatchSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher, err := fetch.NewHTTP(cfg.Upstream.FetchOptions())
	if err != nil {
		slog.Error("failed to build upstream fetcher", "err", err)
		os.Exit(1)
	}

	// Session registry with background eviction of ended sessions.
	st := store.New(cfg.Server.Sessions.TTL)
	go st.Run(ctx)

	reg := metrics.New()

	hub := ws.New(fetcher, st, reg, ws.Options{
		Loader:        cfg.Viewport(),
		StatsInterval: cfg.Server.Sessions.StatsInterval,
	})
	go hub.Run(ctx)

	// Loader tuning and log level follow the file; listeners and the
	// upstream client need a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			level.Set(next.SlogLevel())
			hub.SetLoaderConfig(next.Viewport())
			slog.Info("loader config applied to new sessions",
				"divisions", next.Loader.Divisions,
				"min_zoom", next.Loader.MinZoom,
				"debounce", next.Loader.Debounce,
				"batch_size", next.Loader.BatchSize)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	authMW := auth.APIKey(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Mount("/", api.New(api.Deps{
		Store:      st,
		Metrics:    reg,
		Upstream:   fetcher,
		Started:    time.Now(),
		Middleware: []func(http.Handler) http.Handler{authMW},
	}))
	r.With(authMW).Handle("/ws/map", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("polyviewd shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
