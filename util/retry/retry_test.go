// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryUntilSucceeds(t *testing.T) {
	hello := func() (string, error) {
		return "hello", nil
	}

	ctx := context.Background()
	got, err := UntilSucceeds(ctx, hello)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	newCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = UntilSucceeds(newCtx, hello)
	require.ErrorContains(t, err, "context canceled")
}

func failingFor(failures int) (func(context.Context) (int, error), *int) {
	calls := 0
	return func(context.Context) (int, error) {
		calls++
		if calls <= failures {
			return 0, fmt.Errorf("boom %d", calls)
		}
		return calls, nil
	}, &calls
}

func TestBoundedSucceedsAfterFailures(t *testing.T) {
	for k := 0; k < 3; k++ {
		fn, calls := failingFor(k)
		got, err := Bounded(context.Background(), 3, fn)
		require.NoError(t, err)
		require.Equal(t, k+1, got)
		require.Equal(t, k+1, *calls)
	}
}

func TestBoundedExhausted(t *testing.T) {
	fn, calls := failingFor(10)
	_, err := Bounded(context.Background(), 4, fn)
	require.Error(t, err)
	require.Equal(t, 4, *calls)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, map[int]string{
		0: "boom 1",
		1: "boom 2",
		2: "boom 3",
		3: "boom 4",
	}, exhausted.Attempts)
	require.EqualError(t, exhausted.Last, "boom 4")
	require.Contains(t, err.Error(), "attempt 1: boom 2")
}

func TestBoundedPermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("not registered")
	calls := 0
	_, err := Bounded(context.Background(), 5, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, Permanent(fmt.Errorf("lookup: %w", sentinel))
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, sentinel)
	var exhausted *ExhaustedError
	require.False(t, errors.As(err, &exhausted))
}

func TestBoundedStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Bounded(ctx, 5, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestBoundedMinimumOneAttempt(t *testing.T) {
	fn, calls := failingFor(1)
	_, err := Bounded(context.Background(), 0, fn)
	require.Error(t, err)
	require.Equal(t, 1, *calls)
}
