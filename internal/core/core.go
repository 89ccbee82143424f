// Package core builds the CoreContext dependency-injection container:
// Logger, Metrics Registry, RateLimiter, CircuitBreaker Registry, Clock,
// and IDGenerator, constructed once and threaded through the Orchestrator.
// Grounded on the teacher's internal/app.App, generalized here to carry
// this pipeline's collaborators instead of storage/database/queue
// providers.
package core

import (
	"fmt"

	"github.com/edukz/vagas-scrapy/internal/circuit"
	clocksys "github.com/edukz/vagas-scrapy/internal/clock/system"
	"github.com/edukz/vagas-scrapy/internal/config"
	"github.com/edukz/vagas-scrapy/internal/idgen"
	"github.com/edukz/vagas-scrapy/internal/logging"
	"github.com/edukz/vagas-scrapy/internal/metrics"
	"github.com/edukz/vagas-scrapy/internal/ratelimit"
)

// Context bundles every cross-cutting collaborator a crawl run needs. It is
// the module's only container of shared, long-lived state.
type Context struct {
	Settings config.Settings
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Limiter  *ratelimit.Limiter
	Circuits *circuit.Registry
	Clock    *clocksys.Clock
	IDs      *idgen.Generator
}

// New wires a Context from validated Settings.
func New(settings config.Settings) (*Context, error) {
	logger, err := logging.New(logging.Config{
		Dir:              settings.Logging.Dir,
		Level:            settings.Logging.Level,
		RotationMaxMB:    settings.Logging.RotationMaxMB,
		RotationMaxFiles: settings.Logging.RotationMaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		RatePerSecond: settings.Scraping.RatePerSecond,
		Burst:         settings.Scraping.Burst,
	})

	circuits := circuit.NewRegistry(circuit.DefaultConfig())

	return &Context{
		Settings: settings,
		Logger:   logger,
		Metrics:  metrics.New(),
		Limiter:  limiter,
		Circuits: circuits,
		Clock:    clocksys.New(),
		IDs:      idgen.New(),
	}, nil
}

// Close releases the Context's owned resources (currently just the
// logger's rotating file sinks).
func (c *Context) Close() error {
	if c.Logger == nil {
		return nil
	}
	return c.Logger.Close()
}
