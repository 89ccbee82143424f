package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/config"
)

func settingsWithLogDir(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.Load("")
	require.NoError(t, err)
	s.Logging.Dir = t.TempDir()
	s.Cache.Dir = t.TempDir()
	s.Cache.CheckpointDir = t.TempDir()
	return s
}

func TestNewWiresEveryCollaborator(t *testing.T) {
	cc, err := New(settingsWithLogDir(t))
	require.NoError(t, err)
	defer cc.Close()

	assert.NotNil(t, cc.Logger)
	assert.NotNil(t, cc.Metrics)
	assert.NotNil(t, cc.Limiter)
	assert.NotNil(t, cc.Circuits)
	assert.NotNil(t, cc.Clock)
	assert.NotNil(t, cc.IDs)
}

func TestNewFailsWhenLogDirUnwritable(t *testing.T) {
	s := settingsWithLogDir(t)
	s.Logging.Dir = "/proc/self/this-should-not-be-creatable/logs"
	_, err := New(s)
	assert.Error(t, err)
}

func TestCloseIsSafeOnZeroValueContext(t *testing.T) {
	cc := &Context{}
	assert.NoError(t, cc.Close())
}

func TestCloseFlushesLoggerSinks(t *testing.T) {
	cc, err := New(settingsWithLogDir(t))
	require.NoError(t, err)
	require.NoError(t, cc.Close())
}
