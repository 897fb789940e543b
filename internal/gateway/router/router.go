// Package router wires up all dashboard routes and applies the middleware
// chain (RequestID → AccessLog → Metrics → CORS → Auth).
package router

import (
	"net/http"
	"time"

	"github.com/umbusk1/bibliofep/internal/auth/users"
	"github.com/umbusk1/bibliofep/internal/conversations"
	gwhandler "github.com/umbusk1/bibliofep/internal/gateway/handler"
	gwmw "github.com/umbusk1/bibliofep/internal/gateway/middleware"
	ingesthandler "github.com/umbusk1/bibliofep/internal/ingestion/handler"
	"github.com/umbusk1/bibliofep/internal/reports"
	"github.com/umbusk1/bibliofep/internal/stats"
	"github.com/umbusk1/bibliofep/internal/topics"
	"github.com/umbusk1/bibliofep/pkg/health"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	pkgmw "github.com/umbusk1/bibliofep/pkg/middleware"
)

// Deps bundles everything the router mounts. Health, Metrics and Proxies
// may be nil.
type Deps struct {
	Gateway       *gwhandler.Handler
	Ingestion     *ingesthandler.Handler
	Stats         *stats.Handler
	Conversations *conversations.Handler
	Topics        *topics.Handler
	Reports       *reports.Handler
	Health        *health.Checker
	Verifier      gwmw.Verifier
	LoginLimiter  gwmw.Limiter
	Proxies       *gwmw.ProxyList
	Metrics       *metrics.Metrics
	AllowOrigins  []string
	Timeout       time.Duration
}

// New builds the full dashboard HTTP handler.
//
// Route table:
//
//	GET    /health                              → liveness (plain)
//	GET    /health/live, /health/ready          → dependency checks
//	POST   /api/v1/auth/login                   → login (throttled per IP)
//	GET    /api/v1/auth/verify                  → token check
//	POST   /api/v1/uploads                      → ingest an export
//	GET    /api/v1/stats                        → dashboard stats
//	GET    /api/v1/conversations/ids            → ids for topic analysis
//	POST   /api/v1/topics/analyze               → label conversations
//	POST   /api/v1/reports                      → publish a report
//	DELETE /api/v1/reports/{id}                 → delete a report (admin)
//	GET    /api/v1/public/reports               → latest + history
//	GET    /api/v1/public/reports/{id}          → one report
//	GET    /api/v1/public/reports/{id}/export   → CSV or Markdown
//
// Uploads and topic analysis are exempt from the request timeout; both are
// bounded by their own limits.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	timeout := pkgmw.Timeout(d.Timeout)
	bounded := func(h http.HandlerFunc) http.Handler { return timeout(h) }

	mux.Handle("GET /health", bounded(d.Gateway.Health))
	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}

	login := d.Gateway.Login
	if d.LoginLimiter != nil {
		login = gwmw.RateLimit(d.LoginLimiter, d.Proxies, d.Metrics, login)
	}
	mux.Handle("POST /api/v1/auth/login", bounded(login))
	mux.Handle("GET /api/v1/auth/verify", bounded(d.Gateway.Verify))

	mux.HandleFunc("POST /api/v1/uploads", d.Ingestion.Upload)
	mux.Handle("GET /api/v1/stats", bounded(d.Stats.Get))
	mux.Handle("GET /api/v1/conversations/ids", bounded(d.Conversations.ListIDs))
	mux.HandleFunc("POST /api/v1/topics/analyze", d.Topics.Analyze)

	mux.Handle("POST /api/v1/reports", bounded(d.Reports.Publish))
	mux.Handle("DELETE /api/v1/reports/{id}", bounded(gwmw.RequireRole(users.RoleAdmin, d.Reports.Delete)))
	mux.Handle("DELETE /api/v1/reports", bounded(gwmw.RequireRole(users.RoleAdmin, d.Reports.Delete)))
	mux.Handle("GET /api/v1/public/reports", bounded(d.Reports.Public))
	mux.Handle("GET /api/v1/public/reports/{id}", bounded(d.Reports.Get))
	mux.Handle("GET /api/v1/public/reports/{id}/export", bounded(d.Reports.Export))

	// request → RequestID → AccessLog → Metrics → CORS → Auth → mux
	var chain http.Handler = mux
	chain = gwmw.Auth(d.Verifier)(chain)
	chain = gwmw.CORS(gwmw.DefaultCORSConfig(d.AllowOrigins))(chain)
	if d.Metrics != nil {
		chain = pkgmw.Metrics(d.Metrics)(chain)
	}
	chain = pkgmw.AccessLog(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
