// Package ratelimit implements the token-bucket pacing and adaptive
// slowdown described for the pipeline's per-host rate limiter, built on
// golang.org/x/time/rate the way the teacher's per-domain limiter map does.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds the baseline rate limiter configuration for one host.
type Config struct {
	RatePerSecond float64
	Burst         int
}

const (
	floorFraction      = 0.10
	failureFactor      = 0.5
	recoveryFactor     = 1.20
	recoveryStreakSize = 20
)

// hostLimiter wraps an *rate.Limiter with the adaptive baseline bookkeeping
// spec.md's adjust() semantics need; x/time/rate itself has no notion of a
// recoverable baseline.
type hostLimiter struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	baseline      float64
	floor         float64
	current       float64
	successStreak int
}

func newHostLimiter(cfg Config) *hostLimiter {
	baseline := cfg.RatePerSecond
	if baseline <= 0 {
		baseline = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &hostLimiter{
		limiter:  rate.NewLimiter(rate.Limit(baseline), burst),
		baseline: baseline,
		floor:    baseline * floorFraction,
		current:  baseline,
	}
}

func (h *hostLimiter) adjust(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !success {
		h.successStreak = 0
		next := h.current * failureFactor
		if next < h.floor {
			next = h.floor
		}
		h.current = next
		h.limiter.SetLimit(rate.Limit(h.current))
		return
	}

	h.successStreak++
	if h.successStreak < recoveryStreakSize {
		return
	}
	h.successStreak = 0
	next := h.current * recoveryFactor
	if next > h.baseline {
		next = h.baseline
	}
	h.current = next
	h.limiter.SetLimit(rate.Limit(h.current))
}

// Limiter manages per-host token buckets. It is process-global for a given
// host, as spec.md requires, by living inside CoreContext as a singleton
// keyed by hostname.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostLimiter
	fallback Config
}

// New creates a Limiter using cfg as the baseline for any host not
// explicitly configured.
func New(cfg Config) *Limiter {
	return &Limiter{
		hosts:    make(map[string]*hostLimiter),
		fallback: cfg,
	}
}

// Acquire blocks until a token is available for rawURL's host.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	hl := l.hostLimiterFor(host)

	if err := hl.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit acquire for %s: %w", host, err)
	}
	return nil
}

// Adjust applies the adaptive slowdown/recovery rule for rawURL's host.
// success=false halves the effective rate (floored at 10% of baseline);
// success=true accrues toward a +20% recovery once 20 successes stack up.
func (l *Limiter) Adjust(rawURL string, success bool) {
	host := hostOf(rawURL)
	l.hostLimiterFor(host).adjust(success)
}

// CurrentRate reports the effective rate currently in force for rawURL's
// host, useful for metrics and tests.
func (l *Limiter) CurrentRate(rawURL string) float64 {
	hl := l.hostLimiterFor(hostOf(rawURL))
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return hl.current
}

func (l *Limiter) hostLimiterFor(host string) *hostLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	hl, ok := l.hosts[host]
	if !ok {
		hl = newHostLimiter(l.fallback)
		l.hosts[host] = hl
	}
	return hl
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return u.Hostname()
}
