package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(InvalidConfig, "unknown strategy")
	require.Error(t, err)
	assert.Equal(t, "unknown strategy", err.Error())

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, InvalidConfig, e.Code())
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := Wrap(base, ProviderFailed, "openai call failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai call failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, base, stderrors.Unwrap(err))

	assert.Nil(t, Wrap(nil, ProviderFailed, "ignored"))
}

func TestWithFields(t *testing.T) {
	err := WithFields(New(RateLimitExceeded, "throttled"), Fields{"provider": "azure"})
	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, RateLimitExceeded, e.Code())
	assert.Equal(t, "azure", e.Fields()["provider"])

	// Fields on a plain error adopt the Unknown code.
	plain := WithFields(fmt.Errorf("boom"), Fields{"item": "pandas_001"})
	require.True(t, stderrors.As(plain, &e))
	assert.Equal(t, Unknown, e.Code())
}

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(fmt.Errorf("401"), AuthFailed, "bad key")
	assert.True(t, stderrors.Is(err, New(AuthFailed, "")))
	assert.False(t, stderrors.Is(err, New(Timeout, "")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Timeout, CodeOf(New(Timeout, "deadline")))
	assert.Equal(t, Unknown, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, AuthFailed, CodeOf(fmt.Errorf("outer: %w", New(AuthFailed, "inner"))))
}

func TestIsProviderError(t *testing.T) {
	assert.True(t, IsProviderError(New(ProviderFailed, "")))
	assert.True(t, IsProviderError(New(RateLimitExceeded, "")))
	assert.True(t, IsProviderError(New(Timeout, "")))
	assert.False(t, IsProviderError(New(InvalidConfig, "")))
	assert.False(t, IsProviderError(fmt.Errorf("plain")))
}

func TestCheckContext(t *testing.T) {
	assert.NoError(t, CheckContext(context.Background(), "generate"))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckContext(canceled, "generate")
	require.Error(t, err)
	assert.Equal(t, Canceled, CodeOf(err))

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	err = CheckContext(expired, "generate")
	require.Error(t, err)
	assert.Equal(t, Timeout, CodeOf(err))
}
