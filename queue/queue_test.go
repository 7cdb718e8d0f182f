package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrisisTextLine/asyncbridge/queue"
	"github.com/CrisisTextLine/asyncbridge/task"
)

func TestQueue_SerializesThreeOpsDespiteReverseBarrierOrder(t *testing.T) {
	f := task.NewFactory()
	q := queue.New()

	barriers := []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}
	var mu sync.Mutex
	var order []int

	handles := make([]task.Handle[struct{}], 3)
	for i := 0; i < 3; i++ {
		i := i
		handles[i] = queue.Enqueue[struct{}](q, f, func(ctx context.Context) (struct{}, error) {
			<-barriers[i]
			mu.Lock()
			order = append(order, i+1)
			mu.Unlock()
			return struct{}{}, nil
		})
	}

	// Fulfil in reverse order: 3, 2, 1.
	close(barriers[2])
	close(barriers[1])
	close(barriers[0])

	for _, h := range handles {
		_, err := h.Await(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestQueue_OperationStartsStrictlyAfterPredecessorCompletes(t *testing.T) {
	f := task.NewFactory()
	q := queue.New()

	var mu sync.Mutex
	var events []string

	h1 := queue.Enqueue[struct{}](q, f, func(ctx context.Context) (struct{}, error) {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		events = append(events, "op1 done")
		mu.Unlock()
		return struct{}{}, nil
	})
	h2 := queue.Enqueue[struct{}](q, f, func(ctx context.Context) (struct{}, error) {
		mu.Lock()
		events = append(events, "op2 start")
		mu.Unlock()
		return struct{}{}, nil
	})

	_, err := h1.Await(context.Background())
	require.NoError(t, err)
	_, err = h2.Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"op1 done", "op2 start"}, events)
}

func TestPerform_CancelsEnqueuedTaskOnCallerCancellation(t *testing.T) {
	f := task.NewFactory()
	q := queue.New()

	started := make(chan struct{})
	ctx, cancelCtx := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := queue.Perform[struct{}](ctx, q, f, func(taskCtx context.Context) (struct{}, error) {
			close(started)
			<-taskCtx.Done()
			return struct{}{}, taskCtx.Err()
		})
		errCh <- err
	}()

	<-started
	cancelCtx()

	err := <-errCh
	assert.Error(t, err)
}

func TestEnqueue_OrderingSurvivesCallerNotAwaiting(t *testing.T) {
	f := task.NewFactory()
	q := queue.New()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		queue.Enqueue[struct{}](q, f, func(ctx context.Context) (struct{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return struct{}{}, nil
		})
	}

	// Enqueue the final op and await it, by which point all predecessors
	// (whose handles nobody held onto) must already have run in order.
	last := queue.Enqueue[struct{}](q, f, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	_, err := last.Await(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
