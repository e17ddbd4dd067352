package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// BrowserHeaders sets a browser-like User-Agent and Accept headers on outgoing
// requests that do not already carry them.
func BrowserHeaders(userAgent string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		r = r.Clone(r.Context())
		if r.Header.Get("User-Agent") == "" && userAgent != "" {
			r.Header.Set("User-Agent", userAgent)
		}
		if r.Header.Get("Accept") == "" {
			r.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		}
		if r.Header.Get("Accept-Language") == "" {
			r.Header.Set("Accept-Language", "en-US,en;q=0.8")
		}
		return next.RoundTrip(r)
	})
}

// HostRateLimitConfig holds configuration for per-host outbound rate limiting.
type HostRateLimitConfig struct {
	RequestsPerSecond float64       // 0 disables limiting
	Burst             int           // token bucket size
	IdleTTL           time.Duration // limiter eviction age (default 3m)
}

// HostRateLimiter hands out one token bucket per remote host.
// Stale buckets are evicted by a background sweeper bound to ctx.
type HostRateLimiter struct {
	cfg   HostRateLimitConfig
	mu    sync.Mutex
	hosts map[string]*hostEntry
}

type hostEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewHostRateLimiter creates a limiter whose sweeper stops when ctx is done.
func NewHostRateLimiter(ctx context.Context, cfg HostRateLimitConfig) *HostRateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &HostRateLimiter{cfg: cfg, hosts: make(map[string]*hostEntry)}
	if cfg.RequestsPerSecond > 0 {
		go l.sweep(ctx)
	}
	return l
}

func (l *HostRateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for host, e := range l.hosts {
				if time.Since(e.lastSeen) > l.cfg.IdleTTL {
					delete(l.hosts, host)
				}
			}
			l.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostRateLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.cfg.RequestsPerSecond <= 0 {
		return nil
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	e, ok := l.hosts[host]
	if !ok {
		e = &hostEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.hosts[host] = e
	}
	e.lastSeen = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

// Len returns the number of tracked hosts.
func (l *HostRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// RateLimited wraps next so each request waits on its host's token bucket.
func RateLimited(l *HostRateLimiter, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if err := l.Wait(r.Context(), r.URL.Hostname()); err != nil {
			return nil, err
		}
		return next.RoundTrip(r)
	})
}
