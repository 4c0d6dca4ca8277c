// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package stopwaiter runs the polling loops of a component under one context
// so they can be cancelled and awaited together.
package stopwaiter

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const slowStopWarning = 30 * time.Second

var (
	ErrNotStarted     = errors.New("stopwaiter not started")
	ErrAlreadyStarted = errors.New("stopwaiter already started")
)

// StopWaiter is embedded by components that own background loops. The zero
// value is ready for Start.
type StopWaiter struct {
	mutex   sync.Mutex // protects started, stopped, ctx, cancel
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	owner   string

	loops sync.WaitGroup
}

// Start derives the loop context from ctx. It panics when called twice.
// Starting after StopAndWait yields an already cancelled context.
func (s *StopWaiter) Start(ctx context.Context, owner any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		panic(ErrAlreadyStarted)
	}
	s.started = true
	s.owner = strings.TrimPrefix(reflect.TypeOf(owner).String(), "*")
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.stopped {
		s.cancel()
	}
}

func (s *StopWaiter) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}

// CallIteratively runs step in its own goroutine until the context is done,
// sleeping for the returned interval between calls. Once stopped, nothing is
// launched.
func (s *StopWaiter) CallIteratively(step func(context.Context) time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if s.stopped {
		return nil
	}
	ctx := s.ctx
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		for {
			interval := step(ctx)
			if ctx.Err() != nil {
				return
			}
			if interval <= 0 {
				continue
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return nil
}

// StopAndWait cancels every loop and blocks until they return. It may be
// called repeatedly, and before Start.
func (s *StopWaiter) StopAndWait() {
	s.stopAndWait(slowStopWarning)
}

func (s *StopWaiter) stopAndWait(warnAfter time.Duration) {
	s.mutex.Lock()
	running := s.started && !s.stopped
	if running {
		s.cancel()
	}
	s.stopped = true
	s.mutex.Unlock()
	if !running {
		return
	}

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()
	timer := time.NewTimer(warnAfter)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
		log.Warn("Slow to stop", "owner", s.owner, "after", warnAfter, "goroutines", runtime.NumGoroutine())
		buf := make([]byte, 1<<20)
		log.Debug("Goroutine dump", "traces", string(buf[:runtime.Stack(buf, true)]))
	}
	<-done
}
