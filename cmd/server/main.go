package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bridgesim/starbridge/internal/catalog"
	"github.com/bridgesim/starbridge/internal/server"
)

const (
	httpShutdownTimeout = 10 * time.Second
	hubShutdownTimeout  = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// A local .env is optional; environment variables still win below.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("starbridge starting",
		"addr", cfg.Addr,
		"allowed_origins", cfg.AllowedOrigins,
		"max_message_size", cfg.MaxMessageSize,
		"catalog", cfg.CatalogPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat, err := loadCatalog(ctx, cfg.CatalogPath)
	if err != nil {
		slog.Error("failed to load vehicle catalog", "path", cfg.CatalogPath, "err", err)
		os.Exit(1)
	}

	bridge := server.NewBridge(cfg, cat)
	go bridge.Hub().Run()
	slog.Info("hub started and ready to manage WebSocket connections")

	httpSrv := server.CreateServer(cfg.Addr, bridge.Routes())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpSrv)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "err", err)
		}
	}

	if err := server.ShutdownServer(httpSrv, httpShutdownTimeout); err != nil {
		slog.Warn("HTTP shutdown incomplete", "err", err)
	}
	if err := bridge.Hub().Shutdown(hubShutdownTimeout); err != nil {
		slog.Warn("hub shutdown incomplete", "err", err)
	}
}

// loadCatalog builds the vehicle catalog: the built-in default when no path
// is configured, otherwise the YAML file with a hot-reload watcher.
func loadCatalog(ctx context.Context, path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(catalog.Default()), nil
	}

	vehicles, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(vehicles)
	go func() {
		if err := cat.Watch(ctx, path); err != nil {
			slog.Warn("catalog watcher stopped", "path", path, "err", err)
		}
	}()
	return cat, nil
}
