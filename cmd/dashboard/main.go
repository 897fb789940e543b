// Command dashboard starts the conversation analytics HTTP service.
//
// It serves uploads, statistics, topic analysis, sessions, and published
// reports from one process, optionally watches a drop directory for exports,
// and exposes Prometheus metrics on a separate port.
//
// Usage:
//
//	go run ./cmd/dashboard [-config configs/dashboard.yaml]
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbusk1/bibliofep/internal/app"
	"github.com/umbusk1/bibliofep/internal/auth/ratelimit"
	"github.com/umbusk1/bibliofep/internal/conversations"
	gwhandler "github.com/umbusk1/bibliofep/internal/gateway/handler"
	gwmw "github.com/umbusk1/bibliofep/internal/gateway/middleware"
	"github.com/umbusk1/bibliofep/internal/gateway/router"
	ingesthandler "github.com/umbusk1/bibliofep/internal/ingestion/handler"
	"github.com/umbusk1/bibliofep/internal/ingestion/watcher"
	"github.com/umbusk1/bibliofep/internal/reports"
	"github.com/umbusk1/bibliofep/internal/stats"
	"github.com/umbusk1/bibliofep/internal/topics"
	"github.com/umbusk1/bibliofep/pkg/config"
	"github.com/umbusk1/bibliofep/pkg/logger"
	"github.com/umbusk1/bibliofep/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting dashboard service",
		"port", cfg.Server.Port,
		"llm_provider", cfg.LLM.Provider,
		"kafka_enabled", cfg.Kafka.Enabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Registerer: prometheus.DefaultRegisterer, Publish: true})
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	slog.Info("connected to postgres", "stats_cache", a.Redis != nil)

	proxies, err := gwmw.ParseProxies(cfg.Auth.TrustedProxies)
	if err != nil {
		slog.Error("invalid auth.trustedProxies", "error", err)
		os.Exit(1)
	}
	limiter := ratelimit.New(cfg.Auth.LoginRateLimit, time.Minute)
	defer limiter.Stop()

	checker := a.HealthChecker()
	handler := router.New(router.Deps{
		Gateway:       gwhandler.New(a.Users, a.Tokens, limiter, a.Metrics),
		Ingestion:     ingesthandler.New(a.Publisher, cfg.Ingestion.MaxUploadBytes),
		Stats:         stats.NewHandler(a.Stats),
		Conversations: conversations.NewHandler(a.Conversations),
		Topics:        topics.NewHandler(a.Labeller),
		Reports:       reports.NewHandler(a.Reports),
		Health:        checker,
		Verifier:      a.Tokens,
		LoginLimiter:  limiter,
		Proxies:       proxies,
		Metrics:       a.Metrics,
		AllowOrigins:  cfg.Server.AllowOrigins,
		Timeout:       cfg.Server.RequestTimeout,
	})

	if cfg.Ingestion.WatchDir != "" {
		w := watcher.New(cfg.Ingestion.WatchDir, cfg.Ingestion.Debounce, a.Publisher)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("drop watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("dashboard service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("dashboard service stopped")
}
