// Package circuit implements the per-host circuit breaker: a sliding
// window of outcomes gates CLOSED -> OPEN -> HALF_OPEN -> CLOSED
// transitions, generalizing the teacher's thresholdDomainBlocker
// (internal/crawler/politeness.go) into the full state machine.
package circuit

import (
	"sync"
	"time"

	"github.com/edukz/vagas-scrapy/internal/errkind"
)

// State is one of the breaker's three states.
type State string

// Recognized states.
const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config controls trip/recovery thresholds for one breaker.
type Config struct {
	TripThreshold  float64
	MinSamples     int
	WindowSize     int
	CoolOff        time.Duration
	MaxCoolOff     time.Duration
	ProbeCount     int
}

// DefaultConfig matches the defaults in spec.md §4.3.
func DefaultConfig() Config {
	return Config{
		TripThreshold: 0.5,
		MinSamples:    20,
		WindowSize:    100,
		CoolOff:       30 * time.Second,
		MaxCoolOff:    5 * time.Minute,
		ProbeCount:    1,
	}
}

// Breaker gates calls to one resource (typically a host).
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	window       []bool // true = success
	openedAt     time.Time
	coolOff      time.Duration
	probesInFlight int
}

// New creates a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		coolOff: cfg.CoolOff,
	}
}

// Registry manages one Breaker per resource name (host or logical
// operation), created lazily, mirroring the teacher's per-host sync.Map
// caches in robotspolicy.go and renderer_chromedp.go.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry using cfg for every breaker it creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (r *Registry) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(r.cfg)
		r.breakers[name] = b
	}
	return b
}

// OpenCount returns how many breakers are currently OPEN, used to compute
// the health score.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.breakers {
		if b.snapshotState() == Open {
			n++
		}
	}
	return n
}

// Allow decides whether a call may proceed, transitioning OPEN->HALF_OPEN
// once cool_off elapses. It returns a release function that must be called
// with the call's outcome exactly once, and an error (circuit_open) when
// the call must fail fast instead.
func (b *Breaker) Allow() (release func(success bool), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.coolOff {
			return nil, errkind.New(errkind.CircuitOpen, "circuit.allow", nil)
		}
		b.state = HalfOpen
		b.probesInFlight = 0
		fallthrough
	case HalfOpen:
		if b.probesInFlight >= b.cfg.ProbeCount {
			return nil, errkind.New(errkind.CircuitOpen, "circuit.allow", nil)
		}
		b.probesInFlight++
		return b.releaseHalfOpen, nil
	default:
		return b.releaseClosed, nil
	}
}

func (b *Breaker) releaseClosed(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(success)
	if b.shouldTrip() {
		b.trip()
	}
}

func (b *Breaker) releaseHalfOpen(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probesInFlight--
	if success {
		b.state = Closed
		b.window = nil
		b.coolOff = b.cfg.CoolOff
		return
	}
	b.coolOff *= 2
	b.trip()
}

func (b *Breaker) record(success bool) {
	b.window = append(b.window, success)
	if len(b.window) > b.cfg.WindowSize {
		b.window = b.window[len(b.window)-b.cfg.WindowSize:]
	}
}

func (b *Breaker) shouldTrip() bool {
	if len(b.window) < b.cfg.MinSamples {
		return false
	}
	failures := 0
	for _, ok := range b.window {
		if !ok {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(b.window))
	return ratio > b.cfg.TripThreshold
}

// trip transitions the breaker to OPEN. Callers that trip from a failed
// HALF_OPEN probe (a reopen, not a first trip) must double b.coolOff
// themselves before calling this, per spec.md's "any failure reopens with
// exponentially increased cool_off" rule.
func (b *Breaker) trip() {
	if b.coolOff > b.cfg.MaxCoolOff {
		b.coolOff = b.cfg.MaxCoolOff
	}
	if b.coolOff == 0 {
		b.coolOff = b.cfg.CoolOff
	}
	b.state = Open
	b.openedAt = time.Now()
	b.window = nil
	b.probesInFlight = 0
}

func (b *Breaker) snapshotState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// State reports the current state, mainly for tests and reporting.
func (b *Breaker) State() State {
	return b.snapshotState()
}
