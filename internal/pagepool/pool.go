// Package pagepool implements a pool of reusable headless-browser page
// workers on top of chromedp, grounded on the teacher's exec-allocator and
// per-tab context pattern (internal/fetcher/headless/chromedp.go,
// internal/crawler/renderer_chromedp.go) and generalized with the
// age/use/error retirement and periodic maintenance the spec requires.
package pagepool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Config controls pool sizing and retirement policy.
type Config struct {
	MinSize         int
	MaxSize         int
	MaxAge          time.Duration
	MaxUses         int
	MaxConsecutive  int
	CleanupInterval time.Duration
	Headless        bool
	UserAgent       string
	ViewportWidth   int
	ViewportHeight  int
	LaunchArgs      []string
}

// DefaultConfig matches spec.md §4.4's defaults.
func DefaultConfig() Config {
	return Config{
		MinSize:         1,
		MaxSize:         4,
		MaxAge:          30 * time.Minute,
		MaxUses:         200,
		MaxConsecutive:  3,
		CleanupInterval: 60 * time.Second,
		Headless:        true,
	}
}

// page is one long-lived browser tab tracked by the pool.
type page struct {
	ctx               context.Context
	cancel            context.CancelFunc
	createdAt         time.Time
	uses              int
	consecutiveErrors int
	lastUsed          time.Time
}

// PageLease is a rented worker guaranteed to be returned to the pool.
type PageLease struct {
	pool *Pool
	pg   *page
}

// Context is the chromedp-ready context for this lease's tab.
func (l *PageLease) Context() context.Context {
	return l.pg.ctx
}

// ReportError marks the lease's fetch attempt as failed, contributing to
// the page's consecutive-error retirement count.
func (l *PageLease) ReportError() {
	l.pg.consecutiveErrors++
}

// ReportSuccess resets the consecutive-error counter after a good fetch.
func (l *PageLease) ReportSuccess() {
	l.pg.consecutiveErrors = 0
}

// Pool manages min_size..max_size browser pages.
type Pool struct {
	cfg Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	free     []*page
	inUse    map[*page]struct{}
	total    int
	waiters  []chan struct{}
	closed   bool

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// New creates a Pool and starts its periodic maintenance goroutine.
func New(cfg Config) (*Pool, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.LaunchArgs {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	p := &Pool{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		inUse:       make(map[*page]struct{}),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		pg, err := p.newPage()
		if err != nil {
			p.allocCancel()
			return nil, fmt.Errorf("warm page pool: %w", err)
		}
		p.free = append(p.free, pg)
		p.total++
	}

	go p.maintenanceLoop()

	return p, nil
}

func (p *Pool) newPage() (*page, error) {
	tabCtx, cancel := chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start page: %w", err)
	}
	now := time.Now()
	return &page{ctx: tabCtx, cancel: cancel, createdAt: now, lastUsed: now}, nil
}

// Acquire blocks until a page is available or ctx is cancelled. Every exit
// path is guaranteed to either return a lease the caller must Release, or
// an error with no lease outstanding — Acquire never leaks a lease on
// cancellation.
func (p *Pool) Acquire(ctx context.Context) (*PageLease, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("page pool closed")
		}

		if len(p.free) > 0 {
			pg := p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			p.inUse[pg] = struct{}{}
			p.mu.Unlock()
			return &PageLease{pool: p, pg: pg}, nil
		}

		if p.total < p.cfg.MaxSize {
			p.total++
			p.mu.Unlock()
			pg, err := p.newPage()
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("create page: %w", err)
			}
			p.mu.Lock()
			p.inUse[pg] = struct{}{}
			p.mu.Unlock()
			return &PageLease{pool: p, pg: pg}, nil
		}

		wait := make(chan struct{})
		p.waiters = append(p.waiters, wait)
		p.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire page: %w", ctx.Err())
		}
	}
}

// Release returns a lease to the pool, resetting or retiring the page as
// appropriate.
func (p *Pool) Release(lease *PageLease) {
	pg := lease.pg
	pg.uses++
	pg.lastUsed = time.Now()

	retire := p.shouldRetire(pg)

	p.mu.Lock()
	delete(p.inUse, pg)
	if retire {
		p.total--
		p.mu.Unlock()
		pg.cancel()
		p.notifyWaiter()
		return
	}
	if err := p.reset(pg); err != nil {
		p.total--
		p.mu.Unlock()
		pg.cancel()
		p.notifyWaiter()
		return
	}
	p.free = append(p.free, pg)
	p.mu.Unlock()
	p.notifyWaiter()
}

func (p *Pool) shouldRetire(pg *page) bool {
	if p.cfg.MaxAge > 0 && time.Since(pg.createdAt) > p.cfg.MaxAge {
		return true
	}
	if p.cfg.MaxUses > 0 && pg.uses >= p.cfg.MaxUses {
		return true
	}
	if p.cfg.MaxConsecutive > 0 && pg.consecutiveErrors >= p.cfg.MaxConsecutive {
		return true
	}
	return false
}

// reset clears cookies/storage and navigates to a blank page, dropping any
// DOM references before the page returns to the free list.
func (p *Pool) reset(pg *page) error {
	if err := chromedp.Run(pg.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return clearBrowserState(ctx)
		}),
		chromedp.Navigate("about:blank"),
	); err != nil {
		return fmt.Errorf("reset page: %w", err)
	}
	return nil
}

func (p *Pool) notifyWaiter() {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		close(w)
		return
	}
	p.mu.Unlock()
}

// maintenanceLoop retires aged/idle pages down to min_size every
// cleanup_interval.
func (p *Pool) maintenanceLoop() {
	defer close(p.cleanupDone)
	interval := p.cfg.CleanupInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCleanup:
			return
		case <-ticker.C:
			p.retireExcessIdle()
		}
	}
}

func (p *Pool) retireExcessIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.free[:0]
	for _, pg := range p.free {
		if len(kept) >= p.cfg.MinSize && p.cfg.MaxAge > 0 && time.Since(pg.createdAt) > p.cfg.MaxAge {
			p.total--
			pg.cancel()
			continue
		}
		kept = append(kept, pg)
	}
	p.free = kept
}

// Close retires every page and tears down the shared allocator. All
// waiters are woken with an error since the pool is going away.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	for _, pg := range p.free {
		pg.cancel()
	}
	for pg := range p.inUse {
		pg.cancel()
	}
	p.free = nil
	p.inUse = make(map[*page]struct{})
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	close(p.stopCleanup)
	<-p.cleanupDone
	p.allocCancel()
	return nil
}

// clearBrowserState drops cookies plus local/session storage for the tab's
// current origin before it is returned to the free list, per spec.md
// §4.4's reset contract. Grounded on the teacher's chromedp network/
// emulation domain use (internal/fetcher/headless/chromedp.go,
// internal/crawler/renderer_chromedp.go), generalized from request-header
// setup to state teardown.
func clearBrowserState(ctx context.Context) error {
	if err := network.ClearBrowserCookies().Do(ctx); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	const clearStorage = `try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}`
	if _, exp, err := runtime.Evaluate(clearStorage).Do(ctx); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	} else if exp != nil {
		return fmt.Errorf("clear storage: %s", exp.Text)
	}
	return nil
}
