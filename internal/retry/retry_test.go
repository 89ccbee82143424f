package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/errkind"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

var _ net.Error = fakeTimeoutErr{}

func TestClassify(t *testing.T) {
	assert.Equal(t, errkind.Kind(""), Classify(nil))
	assert.Equal(t, errkind.Timeout, Classify(fakeTimeoutErr{}))
	assert.Equal(t, errkind.RateLimited, Classify(&HTTPStatusError{StatusCode: 429}))
	assert.Equal(t, errkind.Timeout, Classify(&HTTPStatusError{StatusCode: 408}))
	assert.Equal(t, errkind.ServerError, Classify(&HTTPStatusError{StatusCode: 503}))
	assert.Equal(t, errkind.ClientError, Classify(&HTTPStatusError{StatusCode: 404}))
	assert.Equal(t, errkind.Fatal, Classify(context.Canceled))
	assert.Equal(t, errkind.NetworkTransient, Classify(errors.New("boom")))
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Standard, func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableFailureThenSucceeds(t *testing.T) {
	calls := 0
	var attempts []Attempt
	result, err := Do(context.Background(), Conservative, func(ctx context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, &HTTPStatusError{StatusCode: 503}
		}
		return "recovered", nil
	}, func(a Attempt) {
		attempts = append(attempts, a)
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 2, calls)
	require.Len(t, attempts, 1)
	assert.Equal(t, errkind.ServerError, attempts[0].Class)
}

func TestDoStopsOnNonRetryableClassification(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Aggressive, func(ctx context.Context) (any, error) {
		calls++
		return nil, &HTTPStatusError{StatusCode: 400}
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.ClientError, kind)
}

func TestDoExhaustsRetryableFailure(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Conservative, func(ctx context.Context) (any, error) {
		calls++
		return nil, &HTTPStatusError{StatusCode: 503}
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 2, calls) // Conservative allows 2 attempts
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.ServerError, kind)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, Standard, func(ctx context.Context) (any, error) {
		t.Fatal("op should not run once context is already cancelled")
		return nil, nil
	}, nil)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.Cancelled))
}

func TestDoCancelledDuringBackoffWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, Conservative, func(ctx context.Context) (any, error) {
		return nil, &HTTPStatusError{StatusCode: 503}
	}, nil)
	require.Error(t, err)
}
