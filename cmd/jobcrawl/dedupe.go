package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/edukz/vagas-scrapy/internal/cache"
	"github.com/edukz/vagas-scrapy/internal/cacheindex"
	"github.com/edukz/vagas-scrapy/internal/dedup"
)

func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe [file]",
		Short: "Deduplicate a JSON job file in place, keeping a .bak sibling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := dedup.CleanFile(dedup.DefaultConfig(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("read %d, kept %d, removed %d duplicates (backup: %s)\n",
				report.TotalRead, report.Unique, report.Duplicates, report.BackupPath)
			fmt.Printf("  by reason: %d url, %d fingerprint, %d title+company, %d fuzzy-title\n",
				report.ByReason[dedup.ReasonURL], report.ByReason[dedup.ReasonFingerprint],
				report.ByReason[dedup.ReasonTitleCompany], report.ByReason[dedup.ReasonFuzzyTitle])
			return nil
		},
	}
	return cmd
}

func newPruneCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cache blobs older than max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadContext()
			if err != nil {
				return err
			}
			defer cc.Close()

			blobCache, err := cache.New(cache.Config{
				Dir:              cc.Settings.Cache.Dir,
				CompressionLevel: cc.Settings.Scraping.CompressionLevel,
				MaxAge:           maxAge,
			})
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}

			index, err := cacheindex.Open(filepath.Join(cc.Settings.Cache.Dir, "cache_index.json"))
			if err != nil {
				return fmt.Errorf("open cache index: %w", err)
			}

			keys, err := blobCache.Keys()
			if err != nil {
				return fmt.Errorf("list cache keys: %w", err)
			}

			pruned := 0
			for _, key := range keys {
				age, err := blobCache.Age(key)
				if err != nil {
					continue
				}
				if maxAge > 0 && age > maxAge {
					if err := blobCache.Delete(key); err == nil {
						pruned++
						if err := index.Remove(key); err != nil {
							return fmt.Errorf("remove %s from cache index: %w", key, err)
						}
					}
				}
			}
			fmt.Printf("pruned %d of %d blobs older than %s\n", pruned, len(keys), maxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "prune blobs older than this duration")
	return cmd
}
