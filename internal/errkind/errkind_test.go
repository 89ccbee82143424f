package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsOpKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(NetworkTransient, "fetch.page", cause)
	assert.Equal(t, "fetch.page: network_transient: connection refused", err.Error())
}

func TestErrorFormatsWithoutCause(t *testing.T) {
	err := New(CircuitOpen, "circuit.allow", nil)
	assert.Equal(t, "circuit.allow: circuit_open", err.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(Timeout, "op", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsMatchesTaggedKind(t *testing.T) {
	err := New(RateLimited, "limiter.acquire", nil)
	assert.True(t, Is(err, RateLimited))
	assert.False(t, Is(err, RateLimitedPersist))
}

func TestIsFalseForUntaggedError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), Fatal))
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	err := New(Cancelled, "op", nil)
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, Is(wrapped, Cancelled))
}

func TestKindOfReturnsFalseWhenUntagged(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfReturnsTaggedKind(t *testing.T) {
	err := New(SchemaViolation, "validate", nil)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, SchemaViolation, kind)
}
