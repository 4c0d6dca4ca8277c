// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package retry runs fallible chain reads a bounded number of times.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	attemptFailedCounter = metrics.NewRegisteredCounter("retry/attempt/failed", nil)
	exhaustedCounter     = metrics.NewRegisteredCounter("retry/exhausted", nil)
)

const sleepTime = time.Second * 5

// UntilSucceeds retries the given function until it succeeds or the context is cancelled.
func UntilSucceeds[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	for {
		if ctx.Err() != nil {
			return zeroVal[T](), ctx.Err()
		}
		got, err := fn()
		if err != nil {
			log.Error("Retrying after failure", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(sleepTime):
			}
			continue
		}
		return got, nil
	}
}

// ExhaustedError is returned by Bounded once every attempt has failed.
// Attempts maps the zero-based attempt index to that attempt's error message.
type ExhaustedError struct {
	Attempts map[int]string
	Last     error
}

func (e *ExhaustedError) Error() string {
	keys := make([]int, 0, len(e.Attempts))
	for k := range e.Attempts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "failed after %d attempts", len(keys))
	for _, k := range keys {
		fmt.Fprintf(&sb, "; attempt %d: %s", k, e.Attempts[k])
	}
	return sb.String()
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one no further attempt can fix. Bounded returns the
// wrapped error as is the first time it sees it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Bounded calls fn sequentially, without delay, until it succeeds or has been
// called maxAttempts times. A maxAttempts below one is treated as one.
func Bounded[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context) (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts := make(map[int]string, maxAttempts)
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zeroVal[T](), err
		}
		got, err := fn(ctx)
		if err == nil {
			return got, nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return zeroVal[T](), permanent.err
		}
		attemptFailedCounter.Inc(1)
		log.Trace("Attempt failed", "attempt", attempt, "of", maxAttempts, "err", err)
		attempts[attempt] = err.Error()
		last = err
	}
	exhaustedCounter.Inc(1)
	return zeroVal[T](), &ExhaustedError{Attempts: attempts, Last: last}
}

func zeroVal[T any]() T {
	var result T
	return result
}
