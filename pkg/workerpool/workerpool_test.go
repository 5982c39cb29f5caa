package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Equal(t, 4, New(4).Size())
	assert.Equal(t, runtime.GOMAXPROCS(0), New(0).Size())
	assert.Equal(t, runtime.GOMAXPROCS(0), New(-3).Size())
}

func TestBatchRunsAll(t *testing.T) {
	pool := New(4)
	batch := pool.Batch(context.Background())

	n := 100
	results := make([]int, n)
	for i := range n {
		require.NoError(t, batch.Go(func(context.Context) error {
			results[i] = i * 2
			return nil
		}))
	}
	require.NoError(t, batch.Wait())

	for i := range n {
		assert.Equal(t, i*2, results[i])
	}
}

func TestBoundIsRespected(t *testing.T) {
	pool := New(3)
	batch := pool.Batch(context.Background())

	var active, peak atomic.Int32
	for range 50 {
		require.NoError(t, batch.Go(func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		}))
	}
	require.NoError(t, batch.Wait())

	assert.LessOrEqual(t, int(peak.Load()), 3)
	assert.LessOrEqual(t, pool.Peak(), 3)
}

func TestSharedBoundAcrossBatches(t *testing.T) {
	pool := New(2)

	var active, peak atomic.Int32
	work := func(context.Context) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	}

	// Three "channels", each dispatching its own units on the same pool.
	done := make(chan error, 3)
	for range 3 {
		go func() {
			inner := pool.Batch(context.Background())
			if err := pool.Do(context.Background(), func() error { return work(context.Background()) }); err != nil {
				done <- err
				return
			}
			for range 10 {
				if err := inner.Go(work); err != nil {
					break
				}
			}
			done <- inner.Wait()
		}()
	}
	for range 3 {
		require.NoError(t, <-done)
	}

	assert.LessOrEqual(t, int(peak.Load()), 2)
}

func TestBoundOfOneDoesNotDeadlock(t *testing.T) {
	pool := New(1)
	ctx := context.Background()
	done := make(chan error, 3)

	// Channel-level work goes through Do, tile-level work through a batch.
	for range 3 {
		go func() {
			if err := pool.Do(ctx, func() error { return nil }); err != nil {
				done <- err
				return
			}
			inner := pool.Batch(ctx)
			for range 5 {
				if err := inner.Go(func(context.Context) error { return nil }); err != nil {
					break
				}
			}
			done <- inner.Wait()
		}()
	}

	for range 3 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("bounded pool of size 1 deadlocked")
		}
	}
}

func TestFirstErrorCancelsBatch(t *testing.T) {
	pool := New(1)
	batch := pool.Batch(context.Background())
	boom := errors.New("boom")

	require.NoError(t, batch.Go(func(context.Context) error { return boom }))
	<-batch.Context().Done()

	dispatchErr := batch.Go(func(context.Context) error { return nil })
	assert.ErrorIs(t, dispatchErr, context.Canceled)
	assert.ErrorIs(t, batch.Wait(), boom)
}

func TestCancelledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := New(2)
	assert.ErrorIs(t, pool.Do(ctx, func() error { return nil }), context.Canceled)

	batch := pool.Batch(ctx)
	assert.ErrorIs(t, batch.Go(func(context.Context) error { return nil }), context.Canceled)
	assert.NoError(t, batch.Wait())
}

func BenchmarkBatch(b *testing.B) {
	pool := New(0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := pool.Batch(ctx)
		for j := 0; j < 64; j++ {
			_ = batch.Go(func(context.Context) error {
				_ = j * j
				return nil
			})
		}
		_ = batch.Wait()
	}
}
