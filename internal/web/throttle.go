// throttle.go -- Per-IP token-bucket throttle for abuse-prone endpoints.
//
// Process-local: each instance keeps its own buckets.
package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPThrottle hands out one rate.Limiter per client IP.
type IPThrottle struct {
	mu    sync.Mutex
	ips   map[string]*limiterEntry
	r     rate.Limit
	burst int
}

// NewIPThrottle allows r requests per second per IP with the given burst.
func NewIPThrottle(r rate.Limit, burst int) *IPThrottle {
	return &IPThrottle{
		ips:   make(map[string]*limiterEntry),
		r:     r,
		burst: burst,
	}
}

// Limiter returns the limiter for ip, creating it on first sight.
func (t *IPThrottle) Limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.ips[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(t.r, t.burst)}
		t.ips[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Prune drops limiters idle for longer than idle. Returns how many were removed.
// Called from the maintenance scheduler.
func (t *IPThrottle) Prune(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for ip, e := range t.ips {
		if time.Since(e.lastSeen) > idle {
			delete(t.ips, ip)
			n++
		}
	}
	return n
}

// Middleware rejects requests over the limit with 429.
// Expects chi's RealIP to have normalized RemoteAddr.
func (t *IPThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !t.Limiter(ip).Allow() {
			LogWarn(r, "request throttled")
			TooManyRequests(w, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
