// Package bridge adapts a callback-plus-cancel-handle API into a suspending
// call with cooperative cancellation, per spec.md §4.2. It is the
// primitive reactive.Iterator and stream.Channel are built on.
package bridge

import (
	"context"
	"errors"

	"github.com/CrisisTextLine/asyncbridge/cancel"
	"github.com/CrisisTextLine/asyncbridge/internal/obslog"
)

// ErrCancelled is returned by AwaitCancellable when the caller's context is
// cancelled before body's completion callback wins the race. Compare with
// errors.Is.
var ErrCancelled = errors.New("bridge: cancelled")

// Result is the value delivered to AwaitCancellable's completion callback.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Failed wraps a failure.
func Failed[T any](err error) Result[T] { return Result[T]{Err: err} }

// Option configures a single AwaitCancellable call.
type Option func(*settings)

type settings struct {
	logger obslog.Logger
}

// WithLogger attaches a logger for debug-level tracing of this call's
// registry transitions.
func WithLogger(l obslog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// AwaitCancellable suspends the calling goroutine, runs body, and resumes
// with whatever body's completion callback supplies — or fails with
// ErrCancelled if ctx is cancelled first. body must invoke complete at most
// once (possibly from another goroutine) and may return a cancel.Handle to
// be invoked if cancellation wins the race.
//
// Exactly one of (body's result, ErrCancelled) is ever returned: an
// internal Registry makes the callback-fires-first and
// cancel-fires-first outcomes mutually exclusive (spec.md §4.1 "Bridge
// exclusivity").
func AwaitCancellable[T any](ctx context.Context, body func(complete func(Result[T])) cancel.Handle, opts ...Option) (T, error) {
	s := &settings{logger: obslog.NoOp}
	for _, opt := range opts {
		opt(s)
	}

	reg := cancel.NewRegistry(cancel.WithLogger(s.logger))
	resultCh := make(chan Result[T], 1)

	// Task-cancellation hook (spec.md §4.2 step 2). AfterFunc also fires
	// immediately (in its own goroutine) if ctx is already done, covering
	// step 3's "already cancelled" check without a separate probe.
	stop := context.AfterFunc(ctx, reg.Cancel)
	defer stop()

	complete := func(r Result[T]) {
		// ctx.Err is set synchronously on cancellation, while the AfterFunc
		// hook runs later in its own goroutine; cancelling the registry here
		// makes a completion that arrives after ctx is done lose the race.
		if ctx.Err() != nil {
			reg.Cancel()
		}
		if reg.Deactivate() {
			resultCh <- r
		}
		// else: cancellation already won this race; the result is dropped.
	}

	userHandle := body(complete)

	composite := cancel.NewHandle(func() {
		if userHandle != nil {
			userHandle.Cancel()
		}
		resultCh <- Result[T]{Err: cancellationError(ctx)}
	})

	// If the registry is already cancelled (step 3's race), Add invokes
	// composite synchronously here. If it's already deactivated (the
	// callback already fired synchronously inside body), Add discards it.
	reg.Add(composite)

	r := <-resultCh
	var zero T
	if r.Err != nil {
		return zero, r.Err
	}
	return r.Value, nil
}

func cancellationError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrCancelled, err)
	}
	return ErrCancelled
}
