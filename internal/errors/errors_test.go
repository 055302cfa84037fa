package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := Store(StoreBusy, nil, "database locked")

	assert.True(t, IsKind(err, KindStore))
	assert.True(t, IsStoreKind(err, StoreBusy))
	assert.False(t, IsStoreKind(err, StoreCorrupt))
	assert.False(t, IsKind(err, KindValidation))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := Wrap(KindStore, cause, "write failed")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "write failed")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindStore, nil, "nothing"))
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(Store(StoreBusy, nil, "busy")))
	assert.False(t, IsRetryable(Store(StoreCorrupt, nil, "corrupt")))
	assert.True(t, IsRetryable(Embedder(nil, "timeout")))
	assert.False(t, IsRetryable(Validation("bad depth")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return Store(StoreBusy, nil, "busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := DefaultRetryConfig()

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return Validation("bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsKind(err, KindValidation))
}

func TestRetryExhaustion(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return Store(StoreBusy, nil, "busy")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return Store(StoreBusy, nil, "busy")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}

	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, Store(StoreBusy, nil, "busy")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
