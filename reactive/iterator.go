package reactive

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/CrisisTextLine/asyncbridge/bridge"
	"github.com/CrisisTextLine/asyncbridge/cancel"
	"github.com/CrisisTextLine/asyncbridge/internal/obslog"
)

// ErrConcurrentNext is returned by Next when another Next call on the same
// Iterator is already outstanding. An Iterator supports exactly one
// in-flight consumer, per spec.md §3's "at most one ... consumer
// continuation ... outside awaiting_input" invariant.
var ErrConcurrentNext = errors.New("reactive: concurrent Next calls on the same iterator")

// ErrIteratorCancelled is returned by Next once the iterator has been
// cancelled (via Close or an earlier Next's task cancellation) and the
// caller calls Next again.
var ErrIteratorCancelled = errors.New("reactive: iterator cancelled")

// FailureError wraps a Completion's error as forwarded from the upstream
// publisher, distinguishing it from bridge.ErrCancelled so the non-throwing
// variant can remap only publisher failures to end-of-sequence while still
// always propagating cancellation (see DESIGN.md).
type FailureError struct{ Err error }

func (e *FailureError) Error() string { return "reactive: upstream failed: " + e.Err.Error() }
func (e *FailureError) Unwrap() error { return e.Err }

type iterState int

const (
	stIdle iterState = iota
	stAwaitingSubscription
	stAwaitingConsume
	stAwaitingInput
	stFinishing
	stCancelled
	stCompleted
)

// IterOption configures an Iterator's construction.
type IterOption func(*iteratorSettings)

type iteratorSettings struct {
	logger      obslog.Logger
	nonThrowing bool
}

// WithLogger attaches a logger for debug-level state-transition tracing.
func WithLogger(l obslog.Logger) IterOption {
	return func(s *iteratorSettings) { s.logger = l }
}

// Iterator converts a demand-driven Publisher into a pull-based, lazy
// asynchronous sequence. Each Iterator owns exactly one Subscriber bound to
// exactly one upstream Subscription, per spec.md §4.3.
type Iterator[T any] struct {
	mu         sync.Mutex
	state      iterState
	sub        Subscription
	pending    func(bridge.Result[Option[T]])
	completion Completion
	lastErr    error

	publisher   Publisher[T]
	logger      obslog.Logger
	nonThrowing bool
}

// Option is a value that may or may not be present — spec.md's Option<T>.
type Option[T any] struct {
	Value T
	Ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] { return Option[T]{Value: v, Ok: true} }

// None represents end-of-sequence.
func None[T any]() Option[T] { return Option[T]{} }

// Values adapts p into a lazy asynchronous Iterator. Publisher failures
// surface as *FailureError from Next.
func Values[T any](p Publisher[T], opts ...IterOption) *Iterator[T] {
	return newIterator(p, false, opts...)
}

// ValuesNonThrowing adapts p the same way as Values, but maps any upstream
// failure Completion to a plain end-of-sequence instead of an error — for
// publishers declared never-failing (spec.md §4.3 "Non-throwing variant").
// Cancellation still always surfaces as an error; see DESIGN.md.
func ValuesNonThrowing[T any](p Publisher[T], opts ...IterOption) *Iterator[T] {
	return newIterator(p, true, opts...)
}

func newIterator[T any](p Publisher[T], nonThrowing bool, opts ...IterOption) *Iterator[T] {
	s := &iteratorSettings{logger: obslog.NoOp, nonThrowing: nonThrowing}
	for _, opt := range opts {
		opt(s)
	}
	return &Iterator[T]{
		state:       stIdle,
		publisher:   p,
		logger:      s.logger,
		nonThrowing: s.nonThrowing,
	}
}

// Next suspends until the next element is available, the sequence ends, or
// ctx is cancelled. A None result with a nil error means end-of-sequence.
func (it *Iterator[T]) Next(ctx context.Context) (Option[T], error) {
	v, err := bridge.AwaitCancellable(ctx, func(complete func(bridge.Result[Option[T]])) cancel.Handle {
		return it.onConsume(complete)
	})
	if err != nil {
		var fe *FailureError
		if it.nonThrowing && errors.As(err, &fe) {
			return None[T](), nil
		}
		return None[T](), err
	}
	return v, nil
}

// All adapts the iterator to Go's range-over-func iterator shape so
// `for v := range it.All(ctx)` consumes the sequence directly. Iteration
// stops at end-of-sequence, at the first error (Err reports it after the
// loop), or when the loop body returns false. This is a Go-idiomatic
// convenience beyond spec.md's literal Next() surface.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := it.Next(ctx)
			if err != nil {
				it.mu.Lock()
				it.lastErr = err
				it.mu.Unlock()
				return
			}
			if !v.Ok {
				return
			}
			if !yield(v.Value) {
				it.Close()
				return
			}
		}
	}
}

// Err returns the last error (if any) that ended an All loop. A later loop
// that ends without an error does not clear it.
func (it *Iterator[T]) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.lastErr
}

// Close finalizes the iterator as if it had been dropped without being
// exhausted: it cancels any held upstream subscription. Go has no
// deterministic destructor, so callers drive this explicitly (typically via
// defer) instead of relying on garbage collection, per spec.md §4.3's
// "iterator finalization."
func (it *Iterator[T]) Close() {
	it.mu.Lock()
	var sub Subscription
	var pending func(bridge.Result[Option[T]])
	switch it.state {
	case stIdle:
		it.state = stCancelled
	case stAwaitingSubscription:
		pending = it.pending
		it.state = stCancelled
		it.pending = nil
	case stAwaitingConsume:
		sub = it.sub
		it.state = stCancelled
		it.sub = nil
	case stAwaitingInput:
		sub = it.sub
		pending = it.pending
		it.state = stCancelled
		it.sub = nil
		it.pending = nil
	case stFinishing:
		it.state = stCancelled
		it.completion = Completion{}
	default: // cancelled, completed: no-op
	}
	it.mu.Unlock()

	if sub != nil {
		it.logger.Debug("iterator: cancelling upstream subscription on close")
		sub.Cancel()
	}
	// pending is the bridge's Deactivate-guarded complete callback of an
	// in-flight Next; it must be resumed here or that goroutine blocks
	// forever. On the genuine ctx-cancel path the bridge's own registry is
	// already cancelled, so its Deactivate fails and this call is a no-op there.
	if pending != nil {
		pending(bridge.Failed[Option[T]](ErrIteratorCancelled))
	}
}

func (it *Iterator[T]) onConsume(complete func(bridge.Result[Option[T]])) cancel.Handle {
	it.mu.Lock()
	switch it.state {
	case stIdle:
		it.state = stAwaitingSubscription
		it.pending = complete
		it.mu.Unlock()
		it.publisher.Subscribe(iterSubscriber[T]{it: it})
	case stAwaitingConsume:
		sub := it.sub
		it.state = stAwaitingInput
		it.pending = complete
		it.mu.Unlock()
		sub.Request(1)
	case stFinishing:
		c := it.completion
		it.state = stCompleted
		it.mu.Unlock()
		it.resolve(complete, c)
	case stCompleted:
		it.mu.Unlock()
		complete(bridge.Ok(None[T]()))
	case stCancelled:
		it.mu.Unlock()
		complete(bridge.Failed[Option[T]](ErrIteratorCancelled))
	default: // awaitingSubscription or awaitingInput: a second Next already in flight
		it.mu.Unlock()
		complete(bridge.Failed[Option[T]](ErrConcurrentNext))
	}

	return cancel.NewHandle(it.Close)
}

func (it *Iterator[T]) resolve(k func(bridge.Result[Option[T]]), c Completion) {
	if c.Err != nil {
		k(bridge.Failed[Option[T]](&FailureError{Err: c.Err}))
		return
	}
	k(bridge.Ok(None[T]()))
}

func (it *Iterator[T]) onReceive(sub Subscription) {
	it.mu.Lock()
	switch it.state {
	case stIdle:
		it.state = stAwaitingConsume
		it.sub = sub
		it.mu.Unlock()
	case stAwaitingSubscription:
		it.sub = sub
		it.state = stAwaitingInput
		it.mu.Unlock()
		sub.Request(1)
	case stCancelled:
		it.mu.Unlock()
		sub.Cancel()
	default:
		it.mu.Unlock()
	}
}

func (it *Iterator[T]) onInput(x T) {
	it.mu.Lock()
	if it.state != stAwaitingInput {
		it.mu.Unlock()
		it.logger.Warn("iterator: received input while not awaiting it, dropping")
		return
	}
	k := it.pending
	it.pending = nil
	it.state = stAwaitingConsume
	it.mu.Unlock()
	k(bridge.Ok(Some(x)))
}

func (it *Iterator[T]) onCompletion(c Completion) {
	it.mu.Lock()
	switch it.state {
	case stIdle:
		it.state = stFinishing
		it.completion = c
		it.mu.Unlock()
	case stAwaitingSubscription, stAwaitingInput:
		k := it.pending
		it.pending = nil
		it.state = stCompleted
		it.mu.Unlock()
		it.resolve(k, c)
	case stAwaitingConsume:
		it.state = stFinishing
		it.completion = c
		it.mu.Unlock()
	default:
		it.mu.Unlock()
	}
}

// iterSubscriber adapts Iterator's event handlers to the Subscriber
// interface so it can be passed to Publisher.Subscribe.
type iterSubscriber[T any] struct{ it *Iterator[T] }

func (s iterSubscriber[T]) OnSubscribe(sub Subscription) { s.it.onReceive(sub) }
func (s iterSubscriber[T]) OnNext(v T)                   { s.it.onInput(v) }
func (s iterSubscriber[T]) OnComplete(c Completion)      { s.it.onCompletion(c) }
