package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/hash/sha256"
	"github.com/edukz/vagas-scrapy/internal/job"
	"github.com/edukz/vagas-scrapy/internal/urlnorm"
)

// Crawl itself composes chromedp.Run directly inside fetchPage rather than
// through an injectable transport, so exercising it end to end needs a real
// browser (see DESIGN.md's test-coverage notes). These tests cover every
// pure helper Crawl and crawlSeed delegate to.

func TestCacheKeyForHashesCanonicalURLAndPage(t *testing.T) {
	key, err := cacheKeyFor("https://example.com/jobs?q=go&page=2", 2)
	require.NoError(t, err)

	canon, err := urlnorm.Canonicalize("https://example.com/jobs?q=go&page=2")
	require.NoError(t, err)
	want := sha256.New().HashString(canon + "#2")
	assert.Equal(t, want, key)
}

func TestCacheKeyForIsStableAcrossEquivalentURLForms(t *testing.T) {
	a, err := cacheKeyFor("https://Example.com/jobs?b=2&a=1", 1)
	require.NoError(t, err)
	b, err := cacheKeyFor("https://example.com/jobs?a=1&b=2", 1)
	require.NoError(t, err)
	assert.Equal(t, a, b, "canonicalization should make query order and host case irrelevant")
}

func TestCacheKeyForErrorsOnHostlessURL(t *testing.T) {
	_, err := cacheKeyFor("not-a-url", 1)
	assert.Error(t, err)
}

func TestStatusOKAcceptsOnly2xx(t *testing.T) {
	assert.True(t, statusOK(200))
	assert.True(t, statusOK(204))
	assert.True(t, statusOK(299))
	assert.False(t, statusOK(199))
	assert.False(t, statusOK(300))
	assert.False(t, statusOK(404))
	assert.False(t, statusOK(429))
	assert.False(t, statusOK(503))
}

func TestResponseMetaSnapshotDefaultsToOKWhenNoEventCaptured(t *testing.T) {
	m := newResponseMeta()
	assert.Equal(t, 200, m.snapshot())
}

func TestResponseMetaCapturesDocumentResponseStatus(t *testing.T) {
	m := newResponseMeta()
	m.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 503,
			URL:    "https://example.com/jobs",
		},
	})
	assert.Equal(t, 503, m.snapshot())
}

func TestResponseMetaIgnoresNonDocumentResponses(t *testing.T) {
	m := newResponseMeta()
	m.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeStylesheet,
		Response: &network.Response{
			Status: 500,
			URL:    "https://example.com/style.css",
		},
	})
	assert.Equal(t, 200, m.snapshot())
}

func TestHostOfStripsSchemeAndPath(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://example.com/jobs/1"))
	assert.Equal(t, "example.com", hostOf("http://example.com"))
}

func TestDistinctDropsEmptyAndDuplicateValues(t *testing.T) {
	jobs := []job.Job{
		{Company: "Acme"}, {Company: "Acme"}, {Company: ""}, {Company: "Globex"},
	}
	got := distinct(jobs, func(j job.Job) string { return j.Company })
	assert.Equal(t, []string{"Acme", "Globex"}, got)
}

func TestDistinctMultiFlattensAndDeduplicates(t *testing.T) {
	jobs := []job.Job{
		{Technologies: []string{"go", "sql"}},
		{Technologies: []string{"go", "react"}},
	}
	got := distinctMulti(jobs, func(j job.Job) []string { return j.Technologies })
	assert.Equal(t, []string{"go", "sql", "react"}, got)
}

func TestSuccessRatioIsOneWhenNothingProcessed(t *testing.T) {
	assert.Equal(t, 1.0, successRatio(RunReport{}))
}

func TestSuccessRatioDividesExtractedByTotal(t *testing.T) {
	r := RunReport{JobsExtracted: 3, JobsRejected: 1}
	assert.Equal(t, 0.75, successRatio(r))
}

func TestRunWorkersRunsAllTasksAndReturnsNilOnSuccess(t *testing.T) {
	var count int32
	tasks := make([]func(context.Context) error, 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			count++
			return nil
		}
	}
	err := runWorkers(context.Background(), 2, tasks)
	assert.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestRunWorkersPropagatesFirstError(t *testing.T) {
	wantErr := errors.New("task failed")
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return wantErr },
	}
	err := runWorkers(context.Background(), 2, tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestRunWorkersCancelsRemainingTasksOnFirstError(t *testing.T) {
	wantErr := errors.New("boom")
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return wantErr },
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	err := runWorkers(context.Background(), 2, tasks)
	assert.Error(t, err)
}
