package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Scraping.MaxConcurrent)
	assert.Equal(t, 2.0, s.Scraping.RatePerSecond)
	assert.True(t, s.Scraping.IncrementalMode)
	assert.Equal(t, "data/cache", s.Cache.Dir)
	assert.Equal(t, []string{"json"}, s.Output.Formats)
	assert.Equal(t, "info", s.Logging.Level)
	assert.True(t, s.Browser.Headless)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scraping:
  max_concurrent: 8
  rate_per_second: 5.0
output:
  formats:
    - json
    - csv
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Scraping.MaxConcurrent)
	assert.Equal(t, 5.0, s.Scraping.RatePerSecond)
	assert.Equal(t, []string{"json", "csv"}, s.Output.Formats)
	// unset fields keep their default
	assert.Equal(t, "data/cache", s.Cache.Dir)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("JOBCRAWL_SCRAPING_MAX_CONCURRENT", "16")
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, s.Scraping.MaxConcurrent)
}

func validSettings() Settings {
	s, _ := Load("")
	return s
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validSettings().Validate())
}

func TestValidateRejectsNonPositiveMaxConcurrent(t *testing.T) {
	s := validSettings()
	s.Scraping.MaxConcurrent = 0
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent")
}

func TestValidateRejectsCompressionLevelOutOfRange(t *testing.T) {
	s := validSettings()
	s.Scraping.CompressionLevel = 10
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnknownRetryStrategy(t *testing.T) {
	s := validSettings()
	s.Performance.RetryStrategy = "yolo"
	assert.Error(t, s.Validate())
}

func TestValidateRejectsPoolMaxSizeBelowMinSize(t *testing.T) {
	s := validSettings()
	s.Performance.PoolMinSize = 5
	s.Performance.PoolMaxSize = 2
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnsupportedOutputFormat(t *testing.T) {
	s := validSettings()
	s.Output.Formats = []string{"xml"}
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	s := validSettings()
	s.Logging.Level = "verbose"
	assert.Error(t, s.Validate())
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	s := validSettings()
	s.Scraping.MaxConcurrent = 0
	s.Cache.Dir = ""
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent")
	assert.Contains(t, err.Error(), "cache.dir")
}
