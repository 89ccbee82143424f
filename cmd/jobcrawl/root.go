package main

import (
	"github.com/spf13/cobra"

	"github.com/edukz/vagas-scrapy/internal/config"
	"github.com/edukz/vagas-scrapy/internal/core"
	"github.com/edukz/vagas-scrapy/internal/errkind"
)

// exitCode mirrors the values spec.md §6 assigns to a CLI embedding the
// orchestrator.
const (
	exitSuccess         = 0
	exitConfigInvalid   = 2
	exitIOUnavailable   = 3
	exitCancelled       = 4
	exitAllCircuitsOpen = 5
)

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	kind, ok := errkind.KindOf(err)
	if !ok {
		return exitIOUnavailable
	}
	switch kind {
	case errkind.ConfigInvalid:
		return exitConfigInvalid
	case errkind.Cancelled:
		return exitCancelled
	case errkind.CircuitOpen:
		return exitAllCircuitsOpen
	default:
		return exitIOUnavailable
	}
}

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobcrawl",
		Short: "Fault-tolerant job listing ingestion pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML/JSON config file")

	root.AddCommand(newCrawlCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newDedupeCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newTopCmd())
	return root
}

// loadContext loads Settings and builds a CoreContext, wrapping any load
// or validation failure as errkind.ConfigInvalid so exitCodeFor maps it to
// exit code 2.
func loadContext() (*core.Context, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, errkind.New(errkind.ConfigInvalid, "cli.load_settings", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, errkind.New(errkind.ConfigInvalid, "cli.validate_settings", err)
	}
	ctx, err := core.New(settings)
	if err != nil {
		return nil, errkind.New(errkind.IOUnavailable, "cli.build_core_context", err)
	}
	return ctx, nil
}
