package cancel_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrisisTextLine/asyncbridge/cancel"
)

func TestHandleFunc_RunsOnce(t *testing.T) {
	var count int32
	h := cancel.NewHandle(func() { atomic.AddInt32(&count, 1) })

	require.False(t, h.IsCancelled())
	h.Cancel()
	h.Cancel()
	h.Cancel()

	assert.Equal(t, int32(1), count)
	assert.True(t, h.IsCancelled())
}

func TestHandleFunc_ConcurrentCancel(t *testing.T) {
	var count int32
	h := cancel.NewHandle(func() { atomic.AddInt32(&count, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Cancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), count)
}

func TestHandleFunc_NilFn(t *testing.T) {
	h := cancel.NewHandle(nil)
	assert.NotPanics(t, h.Cancel)
	assert.True(t, h.IsCancelled())
}
