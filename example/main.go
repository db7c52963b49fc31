package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	poller "github.com/st-keller/objid-poller"
	"github.com/st-keller/objid-poller/config"
	"github.com/st-keller/objid-poller/standard"
	"github.com/st-keller/objid-poller/statusapi"
	"github.com/st-keller/objid-poller/transport"
	"github.com/st-keller/objid-poller/types"
	"github.com/st-keller/objid-poller/workspace"
)

func main() {
	// ── 1. Configuration and logging ────────────────────────────────
	cfg := config.Load()
	logger := initLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ── 2. Transport ────────────────────────────────────────────────
	httpClient, err := buildHTTPClient(cfg.Backend)
	if err != nil {
		logger.Error("failed to build HTTP client", "error", err)
		os.Exit(1)
	}

	connectivity := standard.NewConnectivityTracker()
	backend, err := transport.NewBackend(transport.BackendConfig{
		BaseURL:      cfg.Backend.URL,
		APIKey:       cfg.Backend.APIKey,
		HTTPClient:   httpClient,
		Connectivity: connectivity,
	})
	if err != nil {
		logger.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}

	// ── 3. Sinks ────────────────────────────────────────────────────
	consumption := standard.NewConsumptionCache(logger)
	news := standard.NewNewsFeed()
	notifier := standard.NewLogNotifier(standard.LogNotifierConfig{
		Self:       cfg.Notifications.User,
		MaxHistory: cfg.Notifications.History,
		Notify:     func(message string) { fmt.Println("🔔", message) },
		Logger:     logger,
	})

	// ── 4. Poller ───────────────────────────────────────────────────
	p, err := poller.New(poller.Config{
		Enumerator: workspace.Folders{Roots: cfg.Workspace.Folders, Logger: logger},
		Transport:  backend,
		Sinks: poller.Sinks{
			News:        news,
			Consumption: consumption,
			Log:         notifier,
		},
		Refresher: types.RefreshFunc(func() {
			logger.Info("consumption changed, refreshing views", "apps", len(consumption.Apps()))
		}),
		Backoff: cfg.Polling.Policy(),
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create poller", "error", err)
		os.Exit(1)
	}

	if err := p.Start(); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	defer p.Dispose()

	// ── 5. Status API ───────────────────────────────────────────────
	var srv *http.Server
	if cfg.Status.Enabled {
		router := statusapi.NewRouter(statusapi.Deps{
			Poller:       p,
			Apps:         p.Builder(),
			Consumption:  consumption,
			News:         news,
			Notifier:     notifier,
			Connectivity: connectivity,
			StartTime:    time.Now(),
		}, cfg.Status, cfg.RateLimit)

		addr := fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port)
		srv = &http.Server{Addr: addr, Handler: router}

		go func() {
			logger.Info("status API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status API error", "error", err)
			}
		}()
	}

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	p.Dispose()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("status API forced shutdown", "error", err)
		}
	}

	logger.Info("objid-poller stopped")
}

// buildHTTPClient uses HTTP/2 over TLS for https back ends and a plain
// client for local http ones.
func buildHTTPClient(cfg config.BackendConfig) (*http.Client, error) {
	if strings.HasPrefix(cfg.URL, "http://") {
		return &http.Client{Timeout: cfg.Timeout}, nil
	}
	return transport.BuildHTTP2Client(cfg.CAPath, cfg.Timeout)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
