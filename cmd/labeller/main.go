// Command labeller consumes conversations-ingested events from Kafka and runs
// topic analysis on each newly uploaded batch of conversations.
//
// Usage:
//
//	go run ./cmd/labeller [-config configs/dashboard.yaml]
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbusk1/bibliofep/internal/app"
	"github.com/umbusk1/bibliofep/internal/topics"
	"github.com/umbusk1/bibliofep/pkg/config"
	"github.com/umbusk1/bibliofep/pkg/kafka"
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
	if !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "kafka.brokers is empty; the labeller has nothing to consume")
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting labeller service",
		"topic", cfg.Kafka.Topics.ConversationsIngested,
		"group", cfg.Kafka.ConsumerGroup,
		"provider", cfg.LLM.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Metrics.Enabled {
		checker := a.HealthChecker()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.HandlerFunc{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		defer shutdownMetrics(context.Background())
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ConversationsIngested, topics.IngestHandler(a.Labeller))
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("labeller service stopped")
}
