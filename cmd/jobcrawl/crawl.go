package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edukz/vagas-scrapy/internal/cache"
	"github.com/edukz/vagas-scrapy/internal/cacheindex"
	"github.com/edukz/vagas-scrapy/internal/dedup"
	"github.com/edukz/vagas-scrapy/internal/genericsite"
	"github.com/edukz/vagas-scrapy/internal/incremental"
	"github.com/edukz/vagas-scrapy/internal/logging"
	"github.com/edukz/vagas-scrapy/internal/orchestrator"
	"github.com/edukz/vagas-scrapy/internal/output"
	"github.com/edukz/vagas-scrapy/internal/pagepool"
	"github.com/edukz/vagas-scrapy/internal/retry"
	"github.com/edukz/vagas-scrapy/internal/scheduler"
	"github.com/edukz/vagas-scrapy/internal/validator"
)

func newCrawlCmd() *cobra.Command {
	var forced bool
	var schedule string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl pass over the configured seed URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule != "" {
				return runScheduled(cmd.Context(), forced, schedule)
			}
			return runCrawl(cmd.Context(), forced)
		},
	}
	cmd.Flags().BoolVar(&forced, "forced", false, "ignore the incremental early-stop (deduplication still runs)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec (e.g. \"@every 6h\") to run repeatedly instead of once")
	return cmd
}

// runScheduled wraps runCrawl in a robfig/cron loop, blocking until the
// process receives SIGINT/SIGTERM.
func runScheduled(parentCtx context.Context, forced bool, spec string) error {
	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cc, err := loadContext()
	if err != nil {
		return err
	}
	defer cc.Close()

	sched := scheduler.New(cc.Logger, spec, func(runCtx context.Context) error {
		return runCrawl(runCtx, forced)
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	sched.Stop(context.Background())
	return nil
}

func runCrawl(parentCtx context.Context, forced bool) error {
	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cc, err := loadContext()
	if err != nil {
		return err
	}
	defer cc.Close()

	traceID, err := cc.IDs.NewID()
	if err != nil {
		return fmt.Errorf("generate trace id: %w", err)
	}
	ctx = logging.WithTraceID(ctx, traceID)

	settings := cc.Settings

	pool, err := pagepool.New(pagepool.Config{
		MinSize:         settings.Performance.PoolMinSize,
		MaxSize:         settings.Performance.PoolMaxSize,
		MaxAge:          settings.Performance.PoolMaxAge,
		MaxUses:         settings.Performance.PoolMaxUses,
		MaxConsecutive:  3,
		CleanupInterval: settings.Performance.CleanupInterval,
		Headless:        settings.Browser.Headless,
		UserAgent:       settings.Browser.UserAgent,
		LaunchArgs:      settings.Browser.LaunchArgs,
	})
	if err != nil {
		return fmt.Errorf("start page pool: %w", err)
	}

	blobCache, err := cache.New(cache.Config{
		Dir:              settings.Cache.Dir,
		CompressionLevel: settings.Scraping.CompressionLevel,
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	index, err := cacheindex.Open(filepath.Join(settings.Cache.Dir, "cache_index.json"))
	if err != nil {
		return fmt.Errorf("open cache index: %w", err)
	}

	incProc, err := incremental.Open(
		incremental.Config{NewRatioThreshold: 0.30, StopStreak: 2, Forced: forced || settings.Scraping.ForcedMode},
		filepath.Join(settings.Cache.CheckpointDir, "incremental_checkpoint.json"),
	)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}

	extractor, err := genericsite.New(genericsite.Config{}, filepath.Join(settings.Cache.Dir, "selector_scores.json"))
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}

	orch := orchestrator.New(
		cc.Logger,
		cc.Metrics,
		cc.Limiter,
		cc.Circuits,
		pool,
		extractor,
		validator.New(validator.DefaultConfig()),
		incProc,
		dedup.New(dedup.DefaultConfig()),
		blobCache,
		index,
		output.New(settings.Output.Dir),
		cc.IDs,
	)

	report, err := orch.Crawl(ctx, orchestrator.Config{
		Seeds:         settings.Scraping.SeedURLs,
		MaxPages:      settings.Scraping.MaxPages,
		MaxConcurrent: settings.Scraping.MaxConcurrent,
		Forced:        forced || settings.Scraping.ForcedMode,
		OutputFormats: formatsFrom(settings.Output.Formats),
		RunSlug:       traceID,
		RetryStrategy: retry.Strategy(settings.Performance.RetryStrategy),
	})
	if err != nil {
		return err
	}

	if extErr := extractor.PersistScores(); extErr != nil {
		return fmt.Errorf("persist selector scores: %w", extErr)
	}

	fmt.Printf("crawl complete: %d jobs written, %d rejected, %d duplicates, health=%.1f\n",
		report.JobsWritten, report.JobsRejected, report.JobsDuplicate, report.HealthScore)
	return nil
}

func formatsFrom(names []string) []output.Format {
	out := make([]output.Format, 0, len(names))
	for _, n := range names {
		out = append(out, output.Format(n))
	}
	return out
}
