package task

import (
	"context"
	"sync"
)

// TestFactory records every task it spawns so a test can deterministically
// drain them with RunUntilIdle, instead of racing against real concurrency.
type TestFactory struct {
	mu      sync.Mutex
	pending []rawHandle
}

// NewTestFactory returns an empty TestFactory.
func NewTestFactory() *TestFactory { return &TestFactory{} }

func (f *TestFactory) spawn(ctx context.Context, _ Priority, op func(context.Context) (any, error)) rawHandle {
	h := spawn(ctx, op)
	f.mu.Lock()
	f.pending = append(f.pending, h)
	f.mu.Unlock()
	return h
}

func (f *TestFactory) spawnDetached(_ Priority, op func(context.Context) (any, error)) rawHandle {
	h := spawn(context.Background(), op)
	f.mu.Lock()
	f.pending = append(f.pending, h)
	f.mu.Unlock()
	return h
}

// RunUntilIdle awaits every recorded task, one at a time, re-checking the
// pending list after each await so tasks spawned re-entrantly (during the
// drain of another task) are picked up too. Returns when the list is empty.
func (f *TestFactory) RunUntilIdle(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		h := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()

		_, _ = h.await(ctx)
	}
}

// Pending reports how many spawned tasks have not yet been drained.
func (f *TestFactory) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
