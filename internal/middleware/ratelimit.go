package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dealdesk/internal/httputil"
)

// SessionRateLimiter applies a per-IP token bucket to anonymous session
// creation. Session creation is the only unauthenticated write, so it is
// the one endpoint worth throttling this way.
type SessionRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorTTL is how long an idle visitor entry is kept before the sweep
// discards it.
const visitorTTL = 10 * time.Minute

// NewSessionRateLimiter creates a limiter allowing perMinute session
// creations per IP with the given burst.
func NewSessionRateLimiter(perMinute int, burst int, logger *slog.Logger) *SessionRateLimiter {
	rl := &SessionRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		logger:   logger,
	}

	go rl.sweep()

	return rl
}

// Middleware rejects over-limit requests with 429 before they reach the
// handler. Rate-limit rejection is terminal for the session attempt: the
// client surfaces the detail verbatim and does not retry automatically.
func (rl *SessionRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			rl.logger.Warn("session creation rate limited", "ip", ip)
			httputil.RespondError(w, http.StatusTooManyRequests,
				"too many sessions created from this address, try again in a minute")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *SessionRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

// sweep drops idle visitor entries so the map doesn't grow unbounded.
func (rl *SessionRateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-visitorTTL)

		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// clientIP extracts the caller address, preferring X-Forwarded-For when
// the server sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
