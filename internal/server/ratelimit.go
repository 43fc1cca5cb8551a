package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/pii-sentry/internal/config"
)

// RateLimiter applies per-client request limits to the scan API.
type RateLimiter struct {
	config   *config.RateLimitConfig
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter from configuration.
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow reports whether a request from the given client IP is allowed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP).Allow()
}

func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	// lastSeen is read by CleanupStale, so the hit path needs the write
	// lock too.
	r.mu.Lock()
	defer r.mu.Unlock()

	if cl, exists := r.limiters[clientIP]; exists {
		cl.lastSeen = time.Now()
		return cl.limiter
	}

	cl := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), r.config.Burst),
		lastSeen: time.Now(),
	}
	r.limiters[clientIP] = cl
	return cl.limiter
}

// CleanupStale removes limiters that have been idle for over an hour.
func (r *RateLimiter) CleanupStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	for ip, cl := range r.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
		}
	}
}

// StartCleanupRoutine starts a background routine to clean up idle limiters.
func (r *RateLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			r.CleanupStale()
		}
	}()
}
