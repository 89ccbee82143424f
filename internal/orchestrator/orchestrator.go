// Package orchestrator implements the Orchestrator (C12): the composition
// root wiring the Rate Limiter, Retry Engine, Circuit Breaker, Page Pool,
// Selector Fallback, Data Validator, Incremental Processor, Deduplicator,
// Compressed Cache, Cache Index, and Output Writer into one crawl run.
// Grounded on the teacher's internal/worker/worker.go and
// internal/dispatcher/dispatcher.go fan-out structure, and on
// cmd/crawl.go's buildCrawlerEngine composition-root style.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/edukz/vagas-scrapy/internal/cache"
	"github.com/edukz/vagas-scrapy/internal/cacheindex"
	"github.com/edukz/vagas-scrapy/internal/circuit"
	"github.com/edukz/vagas-scrapy/internal/dedup"
	"github.com/edukz/vagas-scrapy/internal/errkind"
	"github.com/edukz/vagas-scrapy/internal/hash/sha256"
	"github.com/edukz/vagas-scrapy/internal/idgen"
	"github.com/edukz/vagas-scrapy/internal/incremental"
	"github.com/edukz/vagas-scrapy/internal/job"
	"github.com/edukz/vagas-scrapy/internal/logging"
	"github.com/edukz/vagas-scrapy/internal/metrics"
	"github.com/edukz/vagas-scrapy/internal/output"
	"github.com/edukz/vagas-scrapy/internal/pagepool"
	"github.com/edukz/vagas-scrapy/internal/ratelimit"
	"github.com/edukz/vagas-scrapy/internal/retry"
	"github.com/edukz/vagas-scrapy/internal/selector"
	"github.com/edukz/vagas-scrapy/internal/urlnorm"
	"github.com/edukz/vagas-scrapy/internal/validator"
)

// Extractor is the pluggable, site-specific adapter the Orchestrator
// delegates DOM interpretation to: it decides how job records and the next
// page URL are read out of a parsed Document, using the Selector Fallback
// mechanism internally.
type Extractor interface {
	ExtractJobs(doc *selector.Document) ([]validator.Raw, error)
	NextPageURL(doc *selector.Document, currentURL string, pageNum int) (string, bool)
}

// Config controls one crawl run.
type Config struct {
	Seeds         []string
	MaxPages      int
	MaxConcurrent int
	Forced        bool
	OutputDir     string
	OutputFormats []output.Format
	RunSlug       string
	RetryStrategy retry.Strategy
}

// Orchestrator wires every pipeline component into a single Crawl entry
// point.
type Orchestrator struct {
	logger      *logging.Logger
	metricsReg  *metrics.Registry
	limiter     *ratelimit.Limiter
	circuits    *circuit.Registry
	pool        *pagepool.Pool
	extractor   Extractor
	val         *validator.Validator
	incProc     *incremental.Processor
	deduper     *dedup.Deduplicator
	blobCache   *cache.Cache
	index       *cacheindex.Index
	writer      *output.Writer
	ids         *idgen.Generator
}

// New wires an Orchestrator from its already-constructed collaborators.
func New(
	logger *logging.Logger,
	metricsReg *metrics.Registry,
	limiter *ratelimit.Limiter,
	circuits *circuit.Registry,
	pool *pagepool.Pool,
	extractor Extractor,
	val *validator.Validator,
	incProc *incremental.Processor,
	deduper *dedup.Deduplicator,
	blobCache *cache.Cache,
	index *cacheindex.Index,
	writer *output.Writer,
	ids *idgen.Generator,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		metricsReg: metricsReg,
		limiter:    limiter,
		circuits:   circuits,
		pool:       pool,
		extractor:  extractor,
		val:        val,
		incProc:    incProc,
		deduper:    deduper,
		blobCache:  blobCache,
		index:      index,
		writer:     writer,
		ids:        ids,
	}
}

// RunReport summarizes a completed (or aborted) crawl run.
type RunReport struct {
	RunSlug             string
	SeedsProcessed      int
	SeedsCircuitTripped int
	PagesFetched        int
	JobsExtracted       int
	JobsRejected        int
	JobsDuplicate       int
	JobsWritten         int
	CountsByKind        map[string]int
	TopErrorKinds       []string
	HealthScore         float64
	Cancelled           bool
	OutputPaths         []string
}

// Crawl runs one full pass over cfg.Seeds and returns a RunReport. Every
// exit path guarantees the Page Pool is closed and the checkpoint is
// flushed, per spec.md §4.12's failure semantics.
func (o *Orchestrator) Crawl(ctx context.Context, cfg Config) (RunReport, error) {
	report := RunReport{
		RunSlug:      cfg.RunSlug,
		CountsByKind: make(map[string]int),
	}

	defer func() {
		if err := o.pool.Close(); err != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "page_pool_close_failed")
		}
		if err := o.incProc.Persist(); err != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "checkpoint_persist_failed")
		}
	}()

	var accumulated []job.Job
	strategy := cfg.RetryStrategy
	if strategy == "" {
		strategy = retry.Standard
	}

	for _, seed := range cfg.Seeds {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			return report, errkind.New(errkind.Cancelled, "orchestrator.crawl", err)
		}

		jobs, circuitTripped, err := o.crawlSeed(ctx, seed, cfg, strategy, &report)
		if err != nil && errkind.Is(err, errkind.Cancelled) {
			report.Cancelled = true
			return report, err
		}
		if circuitTripped {
			report.SeedsCircuitTripped++
		}
		accumulated = append(accumulated, jobs...)
		report.SeedsProcessed++
	}

	if len(cfg.Seeds) > 0 && report.SeedsCircuitTripped == len(cfg.Seeds) && len(accumulated) == 0 {
		return report, errkind.New(errkind.CircuitOpen, "orchestrator.crawl",
			fmt.Errorf("circuit open for all %d seed(s) before any progress", len(cfg.Seeds)))
	}

	// accumulated already holds only jobs admitted by o.deduper inside
	// crawlSeed's per-page Dedupe calls, which share this same instance
	// across the whole run — running Dedupe again here would just find
	// every job's URL already recorded and flag the entire batch as
	// duplicate.
	if o.writer != nil && len(cfg.OutputFormats) > 0 {
		paths, err := o.writer.Write(cfg.RunSlug, accumulated, cfg.OutputFormats)
		if err != nil {
			return report, fmt.Errorf("write outputs: %w", err)
		}
		report.OutputPaths = paths
		report.JobsWritten = len(accumulated)
	}

	report.HealthScore = metrics.HealthInputs{
		SuccessRatio:        successRatio(report),
		MeanValidationScore: validator.QualityScore(report.JobsExtracted+report.JobsRejected, report.JobsRejected, 0),
		OpenCircuitCount:    o.circuits.OpenCount(),
	}.Score()

	return report, nil
}

func successRatio(r RunReport) float64 {
	total := r.JobsExtracted + r.JobsRejected
	if total == 0 {
		return 1
	}
	return float64(r.JobsExtracted) / float64(total)
}

// crawlSeed pages through seed until the incremental early-stop fires, the
// extractor finds no next page, or a page-level failure breaks the loop.
// The returned bool reports whether the host's circuit was already open
// before this seed fetched a single page, so Crawl can distinguish "every
// seed tripped before any progress" (spec.md §6 exit code 5) from an
// ordinary mid-run circuit trip on an otherwise-productive seed.
func (o *Orchestrator) crawlSeed(ctx context.Context, seed string, cfg Config, strategy retry.Strategy, report *RunReport) ([]job.Job, bool, error) {
	var seedJobs []job.Job
	currentURL := seed
	knownStreak := 0
	pagesFetchedForSeed := 0

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return seedJobs, false, errkind.New(errkind.Cancelled, "orchestrator.crawl_seed", err)
		}

		breaker := o.circuits.For(hostOf(currentURL))
		release, err := breaker.Allow()
		if err != nil {
			o.logger.Event(ctx, zapcore.WarnLevel, "orchestrator", "circuit_open")
			return seedJobs, pagesFetchedForSeed == 0, nil
		}

		doc, fetchErr := o.fetchPage(ctx, currentURL, strategy)
		release(fetchErr == nil)
		if fetchErr != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "page_fetch_failed")
			report.CountsByKind[string(retry.Classify(fetchErr))]++
			break
		}

		report.PagesFetched++
		pagesFetchedForSeed++

		rawJobs, err := o.extractor.ExtractJobs(doc)
		if err != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "extract_failed")
			break
		}

		var candidates []job.Job
		now := time.Now().UTC()
		for _, raw := range rawJobs {
			result := o.val.Validate(raw, now)
			if result.Rejected {
				report.JobsRejected++
				report.CountsByKind["schema_violation"]++
				continue
			}
			candidates = append(candidates, result.Job)
			report.JobsExtracted++
		}

		pageResult := o.incProc.ClassifyPage(candidates)
		if pageResult.NewRatio < 0.30 {
			knownStreak++
		} else {
			knownStreak = 0
		}

		unique, duplicates, _ := o.deduper.Dedupe(candidates)
		report.JobsDuplicate += len(duplicates)
		seedJobs = append(seedJobs, unique...)

		if err := o.persistBatch(currentURL, page, unique); err != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "persist_batch_failed")
			return seedJobs, false, errkind.New(errkind.IOUnavailable, "orchestrator.persist_batch", err)
		}

		// Checkpointed at the end of every page, not only on the run's
		// deferred cleanup, so a hard kill mid-run loses at most the page
		// in flight rather than every page already cached this run.
		if err := o.incProc.Persist(); err != nil {
			o.logger.Event(ctx, zapcore.ErrorLevel, "orchestrator", "checkpoint_persist_failed")
		}

		if pageResult.ShouldStop {
			break
		}

		nextURL, hasNext := o.extractor.NextPageURL(doc, currentURL, page)
		if !hasNext {
			break
		}
		currentURL = nextURL
	}

	return seedJobs, false, nil
}

func (o *Orchestrator) fetchPage(ctx context.Context, url string, strategy retry.Strategy) (*selector.Document, error) {
	if err := o.limiter.Acquire(ctx, url); err != nil {
		return nil, fmt.Errorf("rate limit acquire: %w", err)
	}

	result, err := retry.Do(ctx, strategy, func(ctx context.Context) (any, error) {
		lease, err := o.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire page: %w", err)
		}
		defer o.pool.Release(lease)

		// A fetch-scoped child context bounds the response listener's
		// lifetime to this single navigation, since the pool reuses the
		// same tab context (and its event stream) across many fetches.
		fetchCtx, fetchCancel := context.WithCancel(lease.Context())
		defer fetchCancel()

		meta := newResponseMeta()
		chromedp.ListenTarget(fetchCtx, meta.captureEvent)

		var rawHTML string
		runErr := chromedp.Run(fetchCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return network.Enable().Do(ctx)
			}),
			chromedp.Navigate(url),
			chromedp.OuterHTML("html", &rawHTML),
		)
		if runErr != nil {
			lease.ReportError()
			return nil, runErr
		}

		if status := meta.snapshot(); !statusOK(status) {
			lease.ReportError()
			return nil, &retry.HTTPStatusError{StatusCode: status, URL: url}
		}
		lease.ReportSuccess()

		doc, parseErr := selector.Parse(rawHTML)
		if parseErr != nil {
			return nil, parseErr
		}
		return doc, nil
	}, func(attempt retry.Attempt) {
		o.limiter.Adjust(url, false)
	})
	if err != nil {
		o.limiter.Adjust(url, false)
		return nil, err
	}
	o.limiter.Adjust(url, true)
	return result.(*selector.Document), nil
}

// responseMeta captures the main document's HTTP status off the page's
// network event stream, grounded on the teacher's headless fetcher
// (internal/fetcher/headless/chromedp.go's responseMeta).
type responseMeta struct {
	mu     sync.Mutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.mu.Unlock()
}

// snapshot returns the captured status, defaulting to 200 when no document
// response event fired (e.g. a cached navigation chromedp still resolves
// successfully).
func (m *responseMeta) snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

func statusOK(status int) bool {
	return status >= 200 && status < 300
}

func (o *Orchestrator) persistBatch(sourceURL string, page int, jobs []job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	cacheKey, err := cacheKeyFor(sourceURL, page)
	if err != nil {
		return fmt.Errorf("compute cache key: %w", err)
	}

	blob := struct {
		URL        string    `json:"url"`
		Page       int       `json:"page"`
		CapturedAt time.Time `json:"captured_at"`
		Jobs       []job.Job `json:"jobs"`
	}{URL: sourceURL, Page: page, CapturedAt: time.Now().UTC(), Jobs: jobs}

	blobInfo, err := o.blobCache.Put(cacheKey, blob)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}

	entry := cacheindex.Entry{
		CacheKey:         cacheKey,
		FilePath:         blobInfo.Path,
		SourceURL:        sourceURL,
		CapturedAt:       blob.CapturedAt,
		UncompressedSize: blobInfo.UncompressedSize,
		CompressedSize:   blobInfo.CompressedSize,
		CompressionRatio: blobInfo.CompressionRatio(),
		JobCount:         len(jobs),
		Companies:        distinct(jobs, func(j job.Job) string { return j.Company }),
		Technologies:     distinctMulti(jobs, func(j job.Job) []string { return j.Technologies }),
		Locations:        distinct(jobs, func(j job.Job) string { return j.Location }),
		Levels:           distinct(jobs, func(j job.Job) string { return string(j.Level) }),
	}
	if err := o.index.Put(entry); err != nil {
		return fmt.Errorf("update index: %w", err)
	}
	return nil
}

func distinct(jobs []job.Job, pick func(job.Job) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, j := range jobs {
		v := pick(j)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func distinctMulti(jobs []job.Job, pick func(job.Job) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, j := range jobs {
		for _, v := range pick(j) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// cacheKeyFor hashes the canonical URL plus page number per spec.md's
// cache_key = hash(canonical URL + page number), so two surface-different
// forms of the same URL (query order, http vs https) share one cache entry.
func cacheKeyFor(sourceURL string, page int) (string, error) {
	canon, err := urlnorm.Canonicalize(sourceURL)
	if err != nil {
		return "", fmt.Errorf("canonicalize url for cache key: %w", err)
	}
	return sha256.New().HashString(canon + "#" + strconv.Itoa(page)), nil
}

func hostOf(rawURL string) string {
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://"), "/", 2)
	if len(parts) == 0 {
		return "unknown"
	}
	return parts[0]
}

// runWorkers is a small errgroup-bounded fan-out helper kept for callers
// that need to process independent seeds concurrently instead of
// sequentially, mirroring the teacher's dispatcher.go bounded worker pool
// but with first-error propagation and context cancellation.
func runWorkers(ctx context.Context, maxConcurrent int, tasks []func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(ctx)
		})
	}
	return g.Wait()
}
