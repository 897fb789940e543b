package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/respond"
)

// Limiter admits or throttles a key.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// ProxyList holds the reverse proxies whose X-Forwarded-For is trusted.
// A nil or empty list trusts nobody.
type ProxyList struct {
	prefixes []netip.Prefix
}

// ParseProxies accepts plain addresses and CIDRs.
func ParseProxies(entries []string) (*ProxyList, error) {
	p := &ProxyList{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			prefix, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			p.prefixes = append(p.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		p.prefixes = append(p.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return p, nil
}

func (p *ProxyList) trusts(ip string) bool {
	if p == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client address of r. X-Forwarded-For is read only when
// the peer is a trusted proxy, walking it right to left past other trusted
// hops.
func (p *ProxyList) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !p.trusts(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !p.trusts(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

type clientIPKey struct{}

// RateLimit throttles a handler per client address as resolved by proxies.
// Throttled requests get a 429 with Retry-After in whole seconds.
func RateLimit(limiter Limiter, proxies *ProxyList, m *metrics.Metrics, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := proxies.Resolve(r)
		ok, wait := limiter.Allow(ip)
		if !ok {
			if m != nil {
				m.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
			respond.Message(w, r, http.StatusTooManyRequests, "Demasiados intentos, intenta de nuevo más tarde")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
	}
}

// ClientIP returns the address RateLimit keyed the request on, or the peer
// address outside RateLimit.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
