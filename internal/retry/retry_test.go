package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fast(attempts int) Options {
	return Options{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), isTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), isTransient, func(context.Context) error {
		calls++
		return errPermanent
	})
	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	err := Do(ctx, opts, isTransient, func(context.Context) error {
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), fast(4), isTransient, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", errTransient
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	v, err = Value(context.Background(), fast(2), nil, func(context.Context) (string, error) {
		return "partial", errPermanent
	})
	assert.ErrorIs(t, err, errPermanent)
	assert.Empty(t, v)
}
