// Package retry implements the classify-then-backoff retry engine: wrap any
// fallible unit of work, classify its failure, and retry per a named
// strategy with jittered exponential backoff, grounded on the teacher's
// ExponentialRetryPolicy generalized to the full failure taxonomy.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/edukz/vagas-scrapy/internal/errkind"
)

// Strategy names the retry presets from spec.md §4.2.
type Strategy string

// Recognized strategies.
const (
	Conservative Strategy = "conservative"
	Standard     Strategy = "standard"
	Aggressive   Strategy = "aggressive"
	NetworkHeavy Strategy = "network_heavy"
)

type policy struct {
	maxAttempts int
	cap         time.Duration
}

var policies = map[Strategy]policy{
	Conservative: {maxAttempts: 2, cap: 10 * time.Second},
	Standard:     {maxAttempts: 3, cap: 30 * time.Second},
	Aggressive:   {maxAttempts: 5, cap: 60 * time.Second},
	NetworkHeavy: {maxAttempts: 4, cap: 120 * time.Second},
}

const baseDelay = 250 * time.Millisecond

// Attempt describes one retry.attempt event for logging/metrics.
type Attempt struct {
	Number int
	Class  errkind.Kind
	Wait   time.Duration
}

// Observer receives one Attempt per retry, letting callers emit the
// mandatory retry.attempt metric and structured log record without the
// engine itself depending on logging/metrics packages.
type Observer func(Attempt)

// Do runs op, retrying per strategy until it succeeds, exhausts its
// attempts, or hits a non-retryable/fatal classification. Every retry,
// rate_limited included, waits the jittered exponential backoff; an explicit
// backoff hint from the server (such as a Retry-After header) is not read.
func Do(ctx context.Context, strategy Strategy, op func(ctx context.Context) (any, error), observe Observer) (any, error) {
	p, ok := policies[strategy]
	if !ok {
		p = policies[Standard]
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errkind.New(errkind.Cancelled, "retry.do", err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := Classify(err)
		if !retryable(class) || attempt == p.maxAttempts {
			return nil, finalError(class, err)
		}

		wait := backoff(attempt, p.cap)
		if observe != nil {
			observe(Attempt{Number: attempt, Class: class, Wait: wait})
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errkind.New(errkind.Cancelled, "retry.wait", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, finalError(Classify(lastErr), lastErr)
}

func finalError(class errkind.Kind, err error) error {
	switch class {
	case errkind.NetworkTransient, errkind.Timeout:
		return errkind.New(errkind.NetworkExhausted, "retry.exhausted", err)
	case errkind.RateLimited:
		return errkind.New(errkind.RateLimitedPersist, "retry.exhausted", err)
	default:
		return errkind.New(class, "retry.exhausted", err)
	}
}

func retryable(class errkind.Kind) bool {
	switch class {
	case errkind.NetworkTransient, errkind.Timeout, errkind.RateLimited, errkind.ServerError:
		return true
	default:
		return false
	}
}

// Classify maps an error to a failure class per the table in spec.md §4.2.
// httpStatus, when embedded via HTTPStatusError, takes precedence over
// generic net.Error timeouts.
func Classify(err error) errkind.Kind {
	if err == nil {
		return ""
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.Fatal
	}
	var kindErr *errkind.Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errkind.Timeout
		}
		return errkind.NetworkTransient
	}
	return errkind.NetworkTransient
}

func classifyStatus(status int) errkind.Kind {
	switch {
	case status == 429:
		return errkind.RateLimited
	case status == 408:
		return errkind.Timeout
	case status >= 500:
		return errkind.ServerError
	case status >= 400:
		return errkind.ClientError
	default:
		return ""
	}
}

// HTTPStatusError carries an HTTP status code so Classify can distinguish
// 429/408/5xx/4xx without parsing error strings.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
}

// backoff computes min(cap, base*2^(attempt-1)) * (1 + jitter), jitter
// uniform in [-0.2, 0.2].
func backoff(attempt int, capDelay time.Duration) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(capDelay) {
		delay = float64(capDelay)
	}
	jitter := uniformJitter()
	return time.Duration(delay * (1 + jitter))
}

func uniformJitter() float64 {
	const scale = 1000
	n, err := rand.Int(rand.Reader, big.NewInt(2*scale+1))
	if err != nil {
		return 0
	}
	return (float64(n.Int64())-scale)/scale*0.2
}
