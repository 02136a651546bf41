package main

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const commandLimiterIdle = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CommandRateLimiter limits control requests per client IP.
// Each IP gets perMinute tokens, refilled at perMinute/60 per second.
type CommandRateLimiter struct {
	limiters  map[string]*ipLimiter
	perMinute int
	mu        sync.Mutex
	now       func() time.Time
}

// NewCommandRateLimiter creates a limiter; perMinute <= 0 allows everything
func NewCommandRateLimiter(perMinute int) *CommandRateLimiter {
	return &CommandRateLimiter{
		limiters:  make(map[string]*ipLimiter),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// Allow reports whether ip may issue another control request now
func (l *CommandRateLimiter) Allow(ip string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.limiters[ip]
	if !exists {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute),
		}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Cleanup drops limiters for IPs idle longer than ten minutes
func (l *CommandRateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > commandLimiterIdle {
			delete(l.limiters, ip)
		}
	}
}

// Tracked returns the number of IPs with a live limiter
func (l *CommandRateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects requests over the limit with 429. Reads pass through.
func (l *CommandRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded", "too many control requests")
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
