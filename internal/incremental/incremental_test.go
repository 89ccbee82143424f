package incremental

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/job"
)

func TestClassifyPageMarksFirstSightingsNew(t *testing.T) {
	p, err := Open(DefaultConfig(), "")
	require.NoError(t, err)

	jobs := []job.Job{
		{URL: "https://x.com/1", SourceFingerprint: "fp1"},
		{URL: "https://x.com/2", SourceFingerprint: "fp2"},
	}
	result := p.ClassifyPage(jobs)
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, 1.0, result.NewRatio)
	assert.False(t, result.ShouldStop)
}

func TestClassifyPageMarksIdenticalResightingKnown(t *testing.T) {
	p, err := Open(DefaultConfig(), "")
	require.NoError(t, err)

	j := job.Job{URL: "https://x.com/1", SourceFingerprint: "fp1"}
	p.ClassifyPage([]job.Job{j})
	result := p.ClassifyPage([]job.Job{j})
	assert.Equal(t, 1, result.KnownCount)
	assert.Equal(t, Known, result.Classifications["https://x.com/1"])
}

func TestClassifyPageMarksSameURLDifferentFingerprintChanged(t *testing.T) {
	p, err := Open(DefaultConfig(), "")
	require.NoError(t, err)

	p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	result := p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp2"}})
	assert.Equal(t, 1, result.ChangedCount)
	assert.Equal(t, Changed, result.Classifications["https://x.com/1"])
}

func TestClassifyPageAnnotatesChangedJobWithPriorFingerprint(t *testing.T) {
	p, err := Open(DefaultConfig(), "")
	require.NoError(t, err)

	p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})

	candidates := []job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp2"}}
	result := p.ClassifyPage(candidates)
	assert.Equal(t, Changed, result.Classifications["https://x.com/1"])
	assert.Equal(t, "fp1", candidates[0].PriorFingerprint)
}

func TestClassifyPageEarlyStopsAfterKnownStreak(t *testing.T) {
	cfg := Config{NewRatioThreshold: 0.30, StopStreak: 2}
	p, err := Open(cfg, "")
	require.NoError(t, err)

	known := job.Job{URL: "https://x.com/known", SourceFingerprint: "fp-known"}
	p.ClassifyPage([]job.Job{known}) // seeds it as known for later pages

	r1 := p.ClassifyPage([]job.Job{known})
	assert.False(t, r1.ShouldStop) // streak == 1

	r2 := p.ClassifyPage([]job.Job{known})
	assert.True(t, r2.ShouldStop) // streak == 2 meets StopStreak
}

func TestClassifyPageForcedNeverStops(t *testing.T) {
	cfg := Config{NewRatioThreshold: 0.30, StopStreak: 1, Forced: true}
	p, err := Open(cfg, "")
	require.NoError(t, err)

	known := job.Job{URL: "https://x.com/known", SourceFingerprint: "fp-known"}
	p.ClassifyPage([]job.Job{known})
	result := p.ClassifyPage([]job.Job{known})
	assert.False(t, result.ShouldStop)
}

func TestPersistAndReopenRestoresSeenSets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	p, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	require.NoError(t, p.Persist())

	reopened, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	result := reopened.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	assert.Equal(t, 1, result.KnownCount)
}

func TestOpenMissingCheckpointStartsFresh(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(DefaultConfig(), filepath.Join(dir, "does-not-exist.json"))
	require.NoError(t, err)
	result := p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	assert.Equal(t, 1, result.NewCount)
}

func TestPersistWritesSpecShapedCheckpointJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	p, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	require.NoError(t, p.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["schema"])
	assert.Contains(t, raw, "seen_urls")
	assert.Contains(t, raw, "seen_fingerprints")
	require.Contains(t, raw, "sessions")

	sessions := raw["sessions"].([]any)
	require.Len(t, sessions, 1)
	session := sessions[0].(map[string]any)
	assert.Contains(t, session, "started_at")
	assert.Contains(t, session, "ended_at")
	assert.Equal(t, float64(1), session["new"])
	assert.Equal(t, float64(0), session["known"])
}

func TestPersistAppendsANewSessionEachCallInsteadOfOverwriting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	p, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	p.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	require.NoError(t, p.Persist())

	p.ClassifyPage([]job.Job{{URL: "https://x.com/2", SourceFingerprint: "fp2"}})
	require.NoError(t, p.Persist())

	var cp Checkpoint
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cp))
	require.Len(t, cp.Sessions, 2)
	assert.Equal(t, 1, cp.Sessions[0].New)
	assert.Equal(t, 1, cp.Sessions[1].New)
}

func TestReopenPreservesPriorSessionsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	first, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	first.ClassifyPage([]job.Job{{URL: "https://x.com/1", SourceFingerprint: "fp1"}})
	require.NoError(t, first.Persist())

	second, err := Open(DefaultConfig(), path)
	require.NoError(t, err)
	second.ClassifyPage([]job.Job{{URL: "https://x.com/2", SourceFingerprint: "fp2"}})
	require.NoError(t, second.Persist())

	var cp Checkpoint
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cp))
	require.Len(t, cp.Sessions, 2)
}
