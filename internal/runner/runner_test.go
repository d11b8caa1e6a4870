package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSequentialInOrder(t *testing.T) {
	r := New(1, 0)
	var mu sync.Mutex
	var order []int

	err := r.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunPausesBetweenStarts(t *testing.T) {
	r := New(1, 0)
	r.Delay = 50 * time.Millisecond
	var sleeps int32
	r.sleep = func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(&sleeps, 1)
		assert.Equal(t, 50*time.Millisecond, d)
		return nil
	}

	require.NoError(t, r.Run(context.Background(), 4, func(ctx context.Context, i int) error { return nil }))
	assert.Equal(t, int32(3), atomic.LoadInt32(&sleeps))
}

func TestRunRealDelay(t *testing.T) {
	r := New(1, 20*time.Millisecond)
	var mu sync.Mutex
	var starts []time.Time

	require.NoError(t, r.Run(context.Background(), 3, func(ctx context.Context, i int) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}))
	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[0]), 40*time.Millisecond)
}

func TestRunPausesAfterSlowTasks(t *testing.T) {
	r := New(1, 40*time.Millisecond)
	var mu sync.Mutex
	starts := make([]time.Time, 3)
	ends := make([]time.Time, 3)

	require.NoError(t, r.Run(context.Background(), 3, func(ctx context.Context, i int) error {
		mu.Lock()
		starts[i] = time.Now()
		mu.Unlock()
		time.Sleep(80 * time.Millisecond)
		mu.Lock()
		ends[i] = time.Now()
		mu.Unlock()
		return nil
	}))
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), 40*time.Millisecond, "gap before task %d", i)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	r := New(2, 0)
	var inFlight, peak int32

	require.NoError(t, r.Run(context.Background(), 10, func(ctx context.Context, i int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunCollectsTaskErrors(t *testing.T) {
	r := New(1, 0)
	errOdd := errors.New("odd")
	var ran int32

	err := r.Run(context.Background(), 4, func(ctx context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		if i%2 == 1 {
			return errOdd
		}
		return nil
	})
	assert.ErrorIs(t, err, errOdd)
	assert.Equal(t, int32(4), atomic.LoadInt32(&ran))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(1, time.Hour)
	var ran int32

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, 5, func(ctx context.Context, i int) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestRunZeroTasks(t *testing.T) {
	assert.NoError(t, New(0, time.Second).Run(context.Background(), 0, nil))
}
