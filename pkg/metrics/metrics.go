// Package metrics defines the Prometheus metric collectors used across the
// dashboard services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the dashboard.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	UploadsTotal           *prometheus.CounterVec
	ConversationsIngested  prometheus.Counter
	MessagesIngested       prometheus.Counter
	StatsCacheHitsTotal    prometheus.Counter
	StatsCacheMissesTotal  prometheus.Counter
	LLMRequestsTotal       *prometheus.CounterVec
	LLMRequestDuration     *prometheus.HistogramVec
	TopicsSavedTotal       prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec
	ReportsPublishedTotal  prometheus.Counter
	LoginAttemptsTotal     *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatdash_uploads_total",
				Help: "Export uploads by outcome (ok, duplicate, invalid, error).",
			},
			[]string{"outcome"},
		),
		ConversationsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_conversations_ingested_total",
				Help: "Conversations written from uploaded exports.",
			},
		),
		MessagesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_messages_ingested_total",
				Help: "Messages written from uploaded exports.",
			},
		),
		StatsCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_stats_cache_hits_total",
				Help: "Stats requests served from Redis.",
			},
		),
		StatsCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_stats_cache_misses_total",
				Help: "Stats requests computed from PostgreSQL.",
			},
		),
		LLMRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatdash_llm_requests_total",
				Help: "Topic-labelling model calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		LLMRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatdash_llm_request_duration_seconds",
				Help:    "Topic-labelling model call latency in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90},
			},
			[]string{"provider"},
		),
		TopicsSavedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_topics_saved_total",
				Help: "Conversation topic rows inserted.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		ReportsPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatdash_reports_published_total",
				Help: "Reports published to the public page.",
			},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatdash_login_attempts_total",
				Help: "Login attempts by outcome (ok, invalid, throttled).",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.UploadsTotal,
		m.ConversationsIngested,
		m.MessagesIngested,
		m.StatsCacheHitsTotal,
		m.StatsCacheMissesTotal,
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.TopicsSavedTotal,
		m.CircuitBreakerState,
		m.ReportsPublishedTotal,
		m.LoginAttemptsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
