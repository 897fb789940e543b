// Package app builds the dashboard's services from configuration. The server,
// the labeller worker, and the CLI share it so every entry point is wired the
// same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbusk1/bibliofep/internal/auth/token"
	"github.com/umbusk1/bibliofep/internal/auth/users"
	"github.com/umbusk1/bibliofep/internal/conversations"
	"github.com/umbusk1/bibliofep/internal/ingestion/publisher"
	"github.com/umbusk1/bibliofep/internal/reports"
	"github.com/umbusk1/bibliofep/internal/stats"
	"github.com/umbusk1/bibliofep/internal/topics"
	"github.com/umbusk1/bibliofep/internal/topics/llm"
	"github.com/umbusk1/bibliofep/pkg/config"
	"github.com/umbusk1/bibliofep/pkg/health"
	"github.com/umbusk1/bibliofep/pkg/kafka"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/postgres"
	pkgredis "github.com/umbusk1/bibliofep/pkg/redis"
)

// App holds the connected clients and the services built on them.
type App struct {
	Config  *config.Config
	DB      *postgres.Client
	Redis   *pkgredis.Client
	Metrics *metrics.Metrics

	Stats         *stats.Service
	StatsStore    *stats.Store
	Publisher     *publisher.Publisher
	Labeller      *topics.Labeller
	Conversations *conversations.Store
	Reports       *reports.Store
	Users         *users.Store
	Tokens        *token.Issuer

	producer *kafka.Producer
	logger   *slog.Logger
}

// Options selects the optional parts of an App.
type Options struct {
	// Registerer receives the metric collectors. Nil means a private registry.
	Registerer prometheus.Registerer
	// Publish enables the Kafka producer for ingest events when brokers are
	// configured.
	Publish bool
}

// New connects to PostgreSQL (required), applies the schema, and connects to
// Redis when configured. A Redis failure leaves the stats cache disabled.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, logger: slog.Default().With("component", "app")}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Metrics = metrics.New(reg)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.DB = db
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	var cache *stats.Cache
	if cfg.Redis.Addr != "" {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, stats caching disabled", "error", err)
		} else {
			a.Redis = rc
			cache = stats.NewCache(rc, cfg.Redis.CacheTTL, a.Metrics)
		}
	}
	a.StatsStore = stats.NewStore(db)
	a.Stats = stats.NewService(a.StatsStore, cache)

	var events kafka.Publisher = kafka.NopPublisher{}
	if opts.Publish && cfg.Kafka.Enabled() {
		a.producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ConversationsIngested)
		events = a.producer
	}
	a.Publisher = publisher.New(db, events, a.Stats, a.Metrics)

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		a.logger.Warn("topic analysis disabled", "provider", cfg.LLM.Provider, "error", err)
		model = llm.Disabled{Reason: err}
	}
	a.Labeller = topics.NewLabeller(topics.NewStore(db), model, a.Stats, cfg.Labeller, cfg.LLM.Timeout, a.Metrics)

	a.Conversations = conversations.NewStore(db)
	a.Reports = reports.NewStore(db, a.Metrics)
	a.Users = users.NewStore(db, cfg.Auth.BcryptCost)
	a.Tokens = token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	return a, nil
}

// HealthChecker registers a probe for every dependency. PostgreSQL is
// required; Redis and Kafka only degrade the service.
func (a *App) HealthChecker() *health.Checker {
	c := health.NewChecker(2 * time.Second)
	c.Add("postgres", a.DB.Ping, true)
	if a.Redis != nil {
		c.Add("redis", a.Redis.Ping, false)
	} else if a.Config.Redis.Addr != "" {
		c.Add("redis", func(context.Context) error { return errors.New("not connected") }, false)
	}
	if a.Config.Kafka.Enabled() {
		brokers := a.Config.Kafka.Brokers
		c.Add("kafka", func(ctx context.Context) error { return kafka.Ping(ctx, brokers) }, false)
	}
	return c
}

// Close releases every client.
func (a *App) Close() error {
	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
