package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Spacing(t *testing.T) {
	l := NewLimiter(1, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	l.Release()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	l.Release()

	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestLimiter_NoSpacing(t *testing.T) {
	l := NewLimiter(1, 0)
	ctx := context.Background()
	start := time.Now()
	for range 10 {
		require.NoError(t, l.Acquire(ctx))
		l.Release()
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := NewLimiter(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)

	// The failed acquire holds no slot.
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
}

func TestLimiter_CancelDuringSpacing(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)
}

func TestLimiter_ConcurrencyCap(t *testing.T) {
	l := NewLimiter(2, 0)
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			l.Release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewLimiter_ZeroConcurrency(t *testing.T) {
	l := NewLimiter(0, 0)
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
}
