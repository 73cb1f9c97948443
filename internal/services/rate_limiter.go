package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/config"
)

// retryEpsilon pads the computed wait so the oldest grant has actually left
// the window by the time the caller retries.
const retryEpsilon = 100 * time.Millisecond

// RateLimiter enforces a sliding-window admission policy for one upstream
// service. The window update and the grant decision are a single critical
// section.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu     sync.Mutex
	grants []time.Time
}

// RateLimiterStats is a read-only snapshot of one limiter's window.
type RateLimiterStats struct {
	MaxRequests     int     `json:"max_requests"`
	WindowSeconds   float64 `json:"window_seconds"`
	CurrentRequests int     `json:"current_requests"`
	Remaining       int     `json:"remaining"`
	AvailableIn     float64 `json:"available_in"`
}

// NewRateLimiter creates a limiter allowing maxRequests grants per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
	}
}

// Acquire attempts to obtain a grant. When the window is full and wait is
// false it denies immediately. When wait is true it runs a bounded
// check-wait-retry sequence: sleep until the oldest grant leaves the window,
// then retry exactly once. The wait is cancelled by ctx.
func (l *RateLimiter) Acquire(ctx context.Context, wait bool) bool {
	ok, sleep := l.tryAcquire(time.Now())
	if ok {
		return true
	}
	if !wait {
		return false
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	ok, _ = l.tryAcquire(time.Now())
	return ok
}

// tryAcquire evicts expired grants and either records a new grant or reports
// how long the caller must wait before the next slot frees up.
func (l *RateLimiter) tryAcquire(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)

	if len(l.grants) < l.maxRequests {
		l.grants = append(l.grants, now)
		return true, 0
	}

	sleep := l.grants[0].Add(l.window).Sub(now) + retryEpsilon
	if sleep < 0 {
		sleep = retryEpsilon
	}
	return false, sleep
}

// evict removes grants older than the window. Callers must hold l.mu.
func (l *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.grants) && !l.grants[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.grants = append(l.grants[:0], l.grants[idx:]...)
	}
}

// Stats reports the current window occupancy.
func (l *RateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evict(now)

	availableIn := 0.0
	if len(l.grants) >= l.maxRequests {
		availableIn = l.grants[0].Add(l.window).Sub(now).Seconds()
		if availableIn < 0 {
			availableIn = 0
		}
	}

	return RateLimiterStats{
		MaxRequests:     l.maxRequests,
		WindowSeconds:   l.window.Seconds(),
		CurrentRequests: len(l.grants),
		Remaining:       l.maxRequests - len(l.grants),
		AvailableIn:     availableIn,
	}
}

// ServiceRateLimiters holds one independently configured limiter per named
// upstream service. Services without an explicit policy share the default.
type ServiceRateLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	fallback *RateLimiter
	logger   *logrus.Logger
}

// NewServiceRateLimiters builds the per-service limiter registry from config.
func NewServiceRateLimiters(cfg config.RateLimitConfig, logger *logrus.Logger) *ServiceRateLimiters {
	limiters := make(map[string]*RateLimiter, len(cfg.Services))
	for name, policy := range cfg.Services {
		limiters[name] = NewRateLimiter(policy.MaxRequests, time.Duration(policy.WindowSeconds)*time.Second)
	}

	fallback := NewRateLimiter(cfg.Default.MaxRequests, time.Duration(cfg.Default.WindowSeconds)*time.Second)

	return &ServiceRateLimiters{
		limiters: limiters,
		fallback: fallback,
		logger:   logger,
	}
}

// Acquire obtains a grant for the named service, falling back to the default
// policy for unconfigured services.
func (s *ServiceRateLimiters) Acquire(ctx context.Context, service string, wait bool) bool {
	s.mu.RLock()
	limiter, ok := s.limiters[service]
	s.mu.RUnlock()
	if !ok {
		limiter = s.fallback
	}

	granted := limiter.Acquire(ctx, wait)
	if !granted {
		s.logger.WithFields(logrus.Fields{
			"service": service,
			"wait":    wait,
		}).Debug("Rate limit denied")
	}
	return granted
}

// Stats returns snapshots for every configured limiter plus the default.
func (s *ServiceRateLimiters) Stats() map[string]RateLimiterStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]RateLimiterStats, len(s.limiters)+1)
	for name, limiter := range s.limiters {
		stats[name] = limiter.Stats()
	}
	stats["default"] = s.fallback.Stats()
	return stats
}
