package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/umbusk1/bibliofep/internal/auth/token"
	"github.com/umbusk1/bibliofep/pkg/metrics"
)

func okHandler(seen **token.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := token.FromContext(r.Context()); ok {
			*seen = c
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	iss := token.NewIssuer("s3cret", time.Hour)
	raw, _, err := iss.Issue(3, "ana@example.com", "viewer")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		path   string
		header string
		want   int
		claims bool
	}{
		{"public report", "/api/v1/public/reports", "", http.StatusOK, false},
		{"public export", "/api/v1/public/reports/3/export", "", http.StatusOK, false},
		{"login", "/api/v1/auth/login", "", http.StatusOK, false},
		{"health", "/health/ready", "", http.StatusOK, false},
		{"no token", "/api/v1/stats", "", http.StatusUnauthorized, false},
		{"bad token", "/api/v1/stats", "Bearer nope", http.StatusUnauthorized, false},
		{"basic scheme", "/api/v1/stats", "Basic " + raw, http.StatusUnauthorized, false},
		{"prefix lookalike", "/api/v1/auth/loginx", "", http.StatusUnauthorized, false},
		{"valid", "/api/v1/stats", "Bearer " + raw, http.StatusOK, true},
		{"lowercase scheme", "/api/v1/uploads", "bearer " + raw, http.StatusOK, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen *token.Claims
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Auth(iss)(okHandler(&seen)).ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.claims && (seen == nil || seen.UserID != 3) {
				t.Errorf("claims not stored: %+v", seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("admin", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for role, want := range map[string]int{"admin": http.StatusNoContent, "viewer": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/reports/1", nil)
		req = req.WithContext(token.WithClaims(req.Context(), &token.Claims{Role: role}))
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", role, rec.Code, want)
		}
	}

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/reports/1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no claims: status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://dash.example.org"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://dash.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://dash.example.org" {
		t.Errorf("preflight: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should get no CORS headers")
	}
}

type fixedLimiter struct {
	allow bool
	keys  []string
}

func (f *fixedLimiter) Allow(key string) (bool, time.Duration) {
	f.keys = append(f.keys, key)
	return f.allow, 1500 * time.Millisecond
}

func TestRateLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	lim := &fixedLimiter{}
	called := false
	h := RateLimit(lim, nil, m, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusTooManyRequests || called {
		t.Fatalf("status = %d called = %v", rec.Code, called)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q", got)
	}
	if lim.keys[0] != "192.0.2.1" {
		t.Errorf("untrusted peer should be keyed on its own address, got %q", lim.keys[0])
	}
	if got := testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("throttled")); got != 1 {
		t.Errorf("throttled count = %v", got)
	}

	lim.allow = true
	var seen string
	h = RateLimit(lim, nil, m, func(w http.ResponseWriter, r *http.Request) { seen = ClientIP(r) })
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	if seen != "192.0.2.1" {
		t.Errorf("ClientIP in handler = %q", seen)
	}
}

func TestProxyListResolve(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8", " 192.0.2.1 "})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "203.0.113.7:1234", "1.2.3.4", "203.0.113.7"},
		{"trusted peer, one hop", "192.0.2.1:1234", "198.51.100.4", "198.51.100.4"},
		{"skips trusted hops from the right", "10.1.1.1:80", "6.6.6.6, 198.51.100.4, 10.2.2.2", "198.51.100.4"},
		{"all hops trusted", "10.1.1.1:80", "10.3.3.3", "10.3.3.3"},
		{"trusted peer without header", "10.1.1.1:80", "", "10.1.1.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := proxies.Resolve(req); got != tc.want {
				t.Errorf("Resolve = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := ParseProxies([]string{"not-an-ip"}); err == nil {
		t.Error("expected an error for a bad entry")
	}
}
