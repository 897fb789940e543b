package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/umbusk1/bibliofep/internal/topics/llm"
	"github.com/umbusk1/bibliofep/pkg/config"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/resilience"
	"github.com/umbusk1/bibliofep/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// Repository is implemented by Store.
type Repository interface {
	UserMessages(ctx context.Context, ids []string) ([]Conversation, error)
	Save(ctx context.Context, assignments []Assignment) (int, error)
}

// CacheInvalidator drops cached statistics once new topics are stored.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Labeller sends conversations to the model in batches and stores the
// topics it returns.
type Labeller struct {
	repo        Repository
	model       llm.Model
	cache       CacheInvalidator
	cfg         config.LabellerConfig
	callTimeout time.Duration
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewLabeller creates a Labeller. cache and m may be nil. callTimeout bounds
// each model call; zero leaves it to the model client.
func NewLabeller(repo Repository, model llm.Model, cache CacheInvalidator, cfg config.LabellerConfig, callTimeout time.Duration, m *metrics.Metrics) *Labeller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	name := "llm-" + model.Name()
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
	}
	return &Labeller{
		repo:        repo,
		model:       model,
		cache:       cache,
		cfg:         cfg,
		callTimeout: callTimeout,
		breaker:     resilience.NewCircuitBreaker(name, cbCfg),
		metrics:     m,
		logger:      slog.Default().With("component", "topic-labeller", "provider", model.Name()),
	}
}

// Analyze labels the given conversations. Topics of batches that succeed
// are kept even when another batch fails; the error is still returned.
func (l *Labeller) Analyze(ctx context.Context, ids []string) (res *Result, err error) {
	ctx, span := tracing.Start(ctx, "topics.analyze")
	defer func() {
		span.End(err)
		span.Log(l.logger)
	}()

	ids = lo.Uniq(lo.Compact(ids))
	span.SetAttr("ids", len(ids))
	convs, err := l.repo.UserMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(convs) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "No se encontraron mensajes")
	}

	batches := lo.Chunk(convs, l.cfg.BatchSize)
	span.SetAttr("batches", len(batches))
	found := make([][]Topic, len(batches))
	var (
		mu    sync.Mutex
		saved int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, batch := range batches {
		g.Go(func() (err error) {
			bctx, bspan := tracing.StartChild(gctx, fmt.Sprintf("topics.batch.%d", i+1))
			defer func() { bspan.End(err) }()

			topics, err := l.labelBatch(bctx, batch)
			if err != nil {
				return fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
			}
			n, err := l.repo.Save(bctx, assign(batch, topics))
			if err != nil {
				return fmt.Errorf("saving batch %d: %w", i+1, err)
			}
			bspan.SetAttr("topics", len(topics))
			bspan.SetAttr("saved", n)
			found[i] = topics
			mu.Lock()
			saved += n
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	if saved > 0 {
		if l.metrics != nil {
			l.metrics.TopicsSavedTotal.Add(float64(saved))
		}
		if l.cache != nil {
			if err := l.cache.Invalidate(ctx); err != nil {
				l.logger.Warn("failed to invalidate stats cache", "error", err)
			}
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	union := lo.UniqBy(lo.Flatten(found), func(t Topic) string { return strings.ToLower(t.Name) })
	l.logger.Info("conversations labelled",
		"conversations", len(convs),
		"batches", len(batches),
		"topics", len(union),
		"saved", saved,
	)
	return &Result{
		Success:        true,
		TopicsAnalyzed: len(union),
		TopicsSaved:    saved,
		Topics:         union,
	}, nil
}

func (l *Labeller) labelBatch(ctx context.Context, batch []Conversation) ([]Topic, error) {
	prompt := BuildPrompt(l.cfg.Domain, batch)
	var text string
	err := resilience.Retry(ctx, "llm-complete", resilience.RetryConfig{
		MaxAttempts:  l.cfg.MaxAttempts,
		InitialDelay: l.cfg.InitialBackoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, resilience.ErrCircuitOpen) && llm.Retryable(err)
		},
		MinDelay: llm.RetryAfter,
	}, func() error {
		return l.breaker.ExecuteCounting(func() error {
			out, err := resilience.Call(ctx, l.callTimeout, "llm-complete", func(ctx context.Context) (string, error) {
				return l.complete(ctx, prompt)
			})
			if err == nil {
				text = out
			}
			return err
		}, llm.Retryable)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}

	topics, err := ExtractTopics(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}
	return topics, nil
}

func (l *Labeller) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := l.model.Complete(ctx, prompt)
	if l.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		l.metrics.LLMRequestsTotal.WithLabelValues(l.model.Name(), outcome).Inc()
		l.metrics.LLMRequestDuration.WithLabelValues(l.model.Name()).Observe(time.Since(start).Seconds())
	}
	return text, err
}

// assign expands topics into per-conversation rows. A topic naming none of
// the batch's conversations applies to all of them.
func assign(batch []Conversation, topics []Topic) []Assignment {
	all := lo.Map(batch, func(c Conversation, _ int) string { return c.ID })
	var out []Assignment
	for _, t := range topics {
		targets := lo.Intersect(all, t.ConversationIDs)
		if len(targets) == 0 {
			targets = all
		}
		for _, id := range targets {
			out = append(out, Assignment{
				ConversationID: id,
				Name:           t.Name,
				Category:       t.Category,
				Relevance:      t.Relevance,
			})
		}
	}
	return out
}
