package lane

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreBasic(t *testing.T) {
	sem := NewSemaphore(3)
	assert.Equal(t, 3, sem.Available())
	assert.Equal(t, 3, sem.Cap())

	require.NoError(t, sem.Acquire(context.Background()))
	require.NoError(t, sem.Acquire(context.Background()))
	assert.Equal(t, 1, sem.Available())
	assert.Equal(t, 2, sem.InUse())

	sem.Release()
	sem.Release()
	assert.Equal(t, 3, sem.Available())
	assert.Equal(t, 2, sem.Peak())
}

func TestSemaphoreTryAcquire(t *testing.T) {
	sem := NewSemaphore(1)
	assert.True(t, sem.TryAcquire())
	assert.False(t, sem.TryAcquire(), "semaphore full")
	sem.Release()
	assert.True(t, sem.TryAcquire())
	sem.Release()
}

func TestSemaphoreAcquireCancelled(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sem.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	sem.Release()
	assert.ErrorIs(t, sem.Acquire(cancelled), context.Canceled,
		"a cancelled context wins even when a slot is free")
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	const limit = 4
	sem := NewSemaphore(limit)

	var (
		cur, peak atomic.Int32
		wg        sync.WaitGroup
	)
	for range 32 {
		wg.Go(func() {
			if !assert.NoError(t, sem.Acquire(context.Background())) {
				return
			}
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			cur.Add(-1)
			sem.Release()
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, limit, sem.Available())
}

func TestSemaphoreReleaseWithoutAcquirePanics(t *testing.T) {
	sem := NewSemaphore(1)
	assert.Panics(t, sem.Release)
	assert.Panics(t, func() { NewSemaphore(0) })
}
