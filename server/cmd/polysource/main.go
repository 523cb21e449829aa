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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/polyview/polyview/server/internal/config"
	"github.com/polyview/polyview/server/internal/source"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dataFile := flag.String("data", "", "GeoJSON FeatureCollection; overrides source.data_file")
	flag.Parse()

	_ = godotenv.Load()

	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	path := cfg.Source.DataFile
	if *dataFile != "" {
		path = *dataFile
	}
	if path == "" {
		slog.Error("no data file: set source.data_file or -data")
		os.Exit(1)
	}

	idx, err := source.Load(path)
	if err != nil {
		slog.Error("failed to load polygons", "path", path, "err", err)
		os.Exit(1)
	}
	slog.Info("polygons indexed", "path", path, "count", idx.Len(), "skipped", idx.Skipped())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Source.HTTPPort),
		Handler:           middleware.Recoverer(source.Handler(idx)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("polysource listening", "port", cfg.Source.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	srv.Shutdown(shutdownCtx) //nolint:errcheck
}
