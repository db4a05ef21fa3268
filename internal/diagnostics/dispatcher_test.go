package diagnostics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDispatcher_RunsAllTasks(t *testing.T) {
	t.Parallel()

	d := NewPoolDispatcher(0, nil)
	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Submit(func() { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, int32(50), ran.Load())
}

func TestPoolDispatcher_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	d := NewPoolDispatcher(2, nil)
	var current, peak atomic.Int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(func() {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolDispatcher_RejectsAfterClose(t *testing.T) {
	t.Parallel()

	d := NewPoolDispatcher(0, nil)
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Submit(func() {}), ErrDispatcherClosed)
}

func TestPoolDispatcher_CloseHonorsContext(t *testing.T) {
	t.Parallel()

	d := NewPoolDispatcher(0, nil)
	release := make(chan struct{})
	require.NoError(t, d.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(release)
}

func TestSerialDispatcher_PreservesOrder(t *testing.T) {
	t.Parallel()

	d := NewSerialDispatcher(16, nil)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestSerialDispatcher_QueueFull(t *testing.T) {
	t.Parallel()

	d := NewSerialDispatcher(1, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	require.NoError(t, d.Submit(func() {}))
	assert.ErrorIs(t, d.Submit(func() {}), ErrQueueFull)

	close(block)
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Submit(func() {}), ErrDispatcherClosed)
}

func TestDispatchers_SurviveTaskPanic(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"pool", "serial", "inline"} {
		t.Run(mode, func(t *testing.T) {
			d, err := NewDispatcher(mode, 0, 4, nil)
			require.NoError(t, err)

			var after atomic.Bool
			require.NoError(t, d.Submit(func() { panic("task exploded") }))
			require.NoError(t, d.Submit(func() { after.Store(true) }))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, d.Close(ctx))
			assert.True(t, after.Load())
		})
	}
}

func TestNewDispatcher_UnknownMode(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher("carrier-pigeon", 0, 0, nil)
	assert.Error(t, err)
}
