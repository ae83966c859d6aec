package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucketSweepInterval bounds how often stale buckets are reaped. A
// bucket idle for two intervals is dropped; its next request simply
// starts a fresh one.
const bucketSweepInterval = 5 * time.Minute

// rateLimiter keys a token bucket per client IP. There is no
// background goroutine: the sweep runs inline, at most once per
// interval, inside allow().
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter refills r tokens per second with the given burst per
// client IP.
func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*clientBucket),
		limit:     rate.Limit(r),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether a request from ip may proceed, taking one
// token from its bucket.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > bucketSweepInterval {
		rl.sweepLocked(now)
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{tokens: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// sweepLocked drops buckets idle for two sweep intervals. Caller holds
// rl.mu.
func (rl *rateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-2 * bucketSweepInterval)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware answers 429 once a client exhausts its bucket.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if rl.allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
				"method", r.Method,
			)
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
		})
	}
}

// proxyHeaders are consulted in order when the deployment fronts the
// server with a trusted proxy. X-Forwarded-For may carry a hop chain;
// only the first hop names the client.
var proxyHeaders = []string{"X-Real-IP", "X-Forwarded-For"}

// clientIP resolves the address a request is limited under. Proxy
// headers count only when trustProxy is set and only when the value
// parses as an IP, so a forged header can never mint arbitrary bucket
// keys.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			raw := r.Header.Get(h)
			if raw == "" {
				continue
			}
			if first, _, ok := strings.Cut(raw, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
