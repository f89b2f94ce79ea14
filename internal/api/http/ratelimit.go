package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client key and evicts
// buckets that have been idle for a while.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientBucket
	rps      rate.Limit
	burst    int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	cl := &clientLimiter{
		limiters: make(map[string]*clientBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go cl.evictLoop()
	return cl
}

func (cl *clientLimiter) allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.limiters[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.limiters[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (cl *clientLimiter) evictLoop() {
	for range time.Tick(time.Minute) {
		cl.mu.Lock()
		for key, b := range cl.limiters {
			if time.Since(b.lastSeen) > 3*time.Minute {
				delete(cl.limiters, key)
			}
		}
		cl.mu.Unlock()
	}
}

// clientKey identifies the caller: first hop of X-Forwarded-For when
// present, otherwise the remote address.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware throttles requests per client with a token bucket.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	cl := newClientLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"success": false,
					"message": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
