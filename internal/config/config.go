// Package config loads and validates the typed Settings tree via Viper,
// following the built-in-defaults, then-file, then-environment load order.
// The loader never partially applies a change: Validate runs against the
// fully merged tree before Load returns.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings captures every configuration knob for a crawl run.
type Settings struct {
	Scraping    ScrapingSettings    `mapstructure:"scraping"`
	Cache       CacheSettings       `mapstructure:"cache"`
	Performance PerformanceSettings `mapstructure:"performance"`
	Output      OutputSettings      `mapstructure:"output"`
	Logging     LoggingSettings     `mapstructure:"logging"`
	Browser     BrowserSettings     `mapstructure:"browser"`
}

// ScrapingSettings controls the crawl itself.
type ScrapingSettings struct {
	SeedURLs         []string `mapstructure:"seed_urls"`
	MaxConcurrent    int      `mapstructure:"max_concurrent"`
	MaxPages         int      `mapstructure:"max_pages"`
	RatePerSecond    float64  `mapstructure:"rate_per_second"`
	Burst            int      `mapstructure:"burst"`
	IncrementalMode  bool     `mapstructure:"incremental"`
	ForcedMode       bool     `mapstructure:"forced"`
	DedupEnabled     bool     `mapstructure:"dedup_enabled"`
	CompressionLevel int      `mapstructure:"compression_level"`
}

// CacheSettings controls the compressed cache and its index.
type CacheSettings struct {
	Dir               string `mapstructure:"dir"`
	MaxAgeHours       int    `mapstructure:"max_age_hours"`
	AutoCleanup       bool   `mapstructure:"auto_cleanup"`
	MaxSizeMB         int    `mapstructure:"max_size_mb"`
	RebuildOnStartup  bool   `mapstructure:"rebuild_on_startup"`
	CheckpointDir     string `mapstructure:"checkpoint_dir"`
}

// PerformanceSettings controls timeouts, retries, and the page pool.
type PerformanceSettings struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"`
	RetryStrategy     string        `mapstructure:"retry_strategy"`
	PoolMinSize       int           `mapstructure:"pool_min_size"`
	PoolMaxSize       int           `mapstructure:"pool_max_size"`
	PoolMaxAge        time.Duration `mapstructure:"pool_max_age"`
	PoolMaxUses       int           `mapstructure:"pool_max_uses"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// OutputSettings controls emitted artifacts.
type OutputSettings struct {
	Dir              string   `mapstructure:"dir"`
	Formats          []string `mapstructure:"formats"`
	MaxFilesPerType  int      `mapstructure:"max_files_per_type"`
}

// LoggingSettings controls the structured logger sinks.
type LoggingSettings struct {
	Level            string `mapstructure:"level"`
	Dir              string `mapstructure:"dir"`
	RotationMaxMB    int    `mapstructure:"rotation_max_mb"`
	RotationMaxFiles int    `mapstructure:"rotation_max_files"`
}

// BrowserSettings controls the headless page pool's browser instances.
type BrowserSettings struct {
	Headless        bool     `mapstructure:"headless"`
	ViewportWidth   int      `mapstructure:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height"`
	UserAgent       string   `mapstructure:"user_agent"`
	LaunchArgs      []string `mapstructure:"launch_args"`
}

// Load builds Settings from built-in defaults, an optional config file, and
// environment overrides (prefix JOBCRAWL_, "." replaced with "_").
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraping.max_concurrent", 4)
	v.SetDefault("scraping.max_pages", 20)
	v.SetDefault("scraping.rate_per_second", 2.0)
	v.SetDefault("scraping.burst", 4)
	v.SetDefault("scraping.incremental", true)
	v.SetDefault("scraping.forced", false)
	v.SetDefault("scraping.dedup_enabled", true)
	v.SetDefault("scraping.compression_level", 6)

	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.max_age_hours", 168)
	v.SetDefault("cache.auto_cleanup", false)
	v.SetDefault("cache.max_size_mb", 2048)
	v.SetDefault("cache.rebuild_on_startup", true)
	v.SetDefault("cache.checkpoint_dir", "data/checkpoints")

	v.SetDefault("performance.navigation_timeout", "60s")
	v.SetDefault("performance.element_timeout", "3s")
	v.SetDefault("performance.retry_strategy", "standard")
	v.SetDefault("performance.pool_min_size", 1)
	v.SetDefault("performance.pool_max_size", 4)
	v.SetDefault("performance.pool_max_age", "30m")
	v.SetDefault("performance.pool_max_uses", 200)
	v.SetDefault("performance.cleanup_interval", "60s")

	v.SetDefault("output.dir", "data/resultados")
	v.SetDefault("output.formats", []string{"json"})
	v.SetDefault("output.max_files_per_type", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "data/logs")
	v.SetDefault("logging.rotation_max_mb", 10)
	v.SetDefault("logging.rotation_max_files", 10)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.launch_args", []string{})
}

// Validate enforces range/shape constraints, returning an explicit message
// for every violation it finds rather than stopping at the first.
func (s Settings) Validate() error {
	var errs []string

	if s.Scraping.MaxConcurrent <= 0 {
		errs = append(errs, "scraping.max_concurrent must be > 0")
	}
	if s.Scraping.MaxPages <= 0 {
		errs = append(errs, "scraping.max_pages must be > 0")
	}
	if s.Scraping.RatePerSecond <= 0 {
		errs = append(errs, "scraping.rate_per_second must be > 0")
	}
	if s.Scraping.Burst <= 0 {
		errs = append(errs, "scraping.burst must be > 0")
	}
	if s.Scraping.CompressionLevel < 1 || s.Scraping.CompressionLevel > 9 {
		errs = append(errs, "scraping.compression_level must be within [1,9]")
	}

	if s.Cache.Dir == "" {
		errs = append(errs, "cache.dir must be set")
	}
	if s.Cache.MaxAgeHours <= 0 {
		errs = append(errs, "cache.max_age_hours must be > 0")
	}
	if s.Cache.CheckpointDir == "" {
		errs = append(errs, "cache.checkpoint_dir must be set")
	}

	if s.Performance.NavigationTimeout <= 0 {
		errs = append(errs, "performance.navigation_timeout must be > 0")
	}
	if s.Performance.ElementTimeout <= 0 {
		errs = append(errs, "performance.element_timeout must be > 0")
	}
	if !validStrategy(s.Performance.RetryStrategy) {
		errs = append(errs, "performance.retry_strategy must be one of conservative|standard|aggressive|network_heavy")
	}
	if s.Performance.PoolMinSize < 0 {
		errs = append(errs, "performance.pool_min_size must be >= 0")
	}
	if s.Performance.PoolMaxSize <= 0 || s.Performance.PoolMaxSize < s.Performance.PoolMinSize {
		errs = append(errs, "performance.pool_max_size must be > 0 and >= pool_min_size")
	}

	if s.Output.Dir == "" {
		errs = append(errs, "output.dir must be set")
	}
	for _, f := range s.Output.Formats {
		if f != "json" && f != "csv" && f != "text" {
			errs = append(errs, fmt.Sprintf("output.formats contains unsupported format %q", f))
		}
	}

	if !validLogLevel(s.Logging.Level) {
		errs = append(errs, "logging.level must be one of debug|info|warn|error")
	}
	if s.Logging.Dir == "" {
		errs = append(errs, "logging.dir must be set")
	}

	if s.Browser.ViewportWidth <= 0 || s.Browser.ViewportHeight <= 0 {
		errs = append(errs, "browser.viewport_width and viewport_height must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validStrategy(s string) bool {
	switch s {
	case "conservative", "standard", "aggressive", "network_heavy":
		return true
	default:
		return false
	}
}

func validLogLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
