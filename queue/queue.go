// Package queue serializes submitted asynchronous operations by chaining
// awaits on the last enqueued task, per spec.md §4.5 and §9.
package queue

import (
	"context"
	"sync"

	"github.com/CrisisTextLine/asyncbridge/task"
)

// waiter erases a task.Handle[T]'s result type so Queue can hold a
// reference to "whatever was last enqueued" regardless of T.
type waiter interface {
	await(ctx context.Context)
}

type handleWaiter[T any] struct{ h task.Handle[T] }

func (w handleWaiter[T]) await(ctx context.Context) {
	_, _ = w.h.Await(ctx) // ignoring both value and error, per spec.md §4.5
}

// Queue holds a reference to the most recently enqueued task only; an empty
// queue is represented by a nil reference. All mutation is serialized by a
// single mutex acquired briefly around the swap, never held across an
// await (spec.md §9's "source-level actor" replacement).
type Queue struct {
	mu   sync.Mutex
	last waiter
}

// New creates an empty Queue.
func New() *Queue { return &Queue{} }

// Enqueue spawns op as a new task that first awaits the predecessor's
// result (ignoring it), then runs op. The returned handle completes after
// every previously enqueued operation has completed. Ordering survives a
// caller that never awaits the returned handle, because the chain is
// carried by the spawned tasks themselves, not by the caller.
func Enqueue[T any](q *Queue, f task.Factory, op func(context.Context) (T, error)) task.Handle[T] {
	q.mu.Lock()
	prev := q.last

	h := task.GoDetached[T](f, task.PriorityDefault, func(taskCtx context.Context) (T, error) {
		if prev != nil {
			prev.await(taskCtx)
		}
		var zero T
		if err := taskCtx.Err(); err != nil {
			return zero, err
		}
		return op(taskCtx)
	})

	q.last = handleWaiter[T]{h: h}
	q.mu.Unlock()

	return h
}

// Perform enqueues op and awaits it against ctx. Unlike bare Enqueue, if
// ctx is cancelled (or its deadline elapses) before op's turn arrives or
// completes, Perform cancels the enqueued task explicitly — the task's own
// context is then observed, both by its wait on the predecessor and by op
// itself, so cancellation actually propagates through the queue instead of
// only abandoning the caller's wait (spec.md §9's Open Question, resolved).
func Perform[T any](ctx context.Context, q *Queue, f task.Factory, op func(context.Context) (T, error)) (T, error) {
	h := Enqueue[T](q, f, op)
	v, err := h.Await(ctx)
	if ctx.Err() != nil {
		h.Cancel()
	}
	return v, err
}
