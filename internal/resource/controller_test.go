package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_MemoryBlocking(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	// Use all memory
	require.NoError(t, c.AcquireMemory(t.Context(), 100))
	assert.Equal(t, int64(100), c.MemoryUsage())

	// Attempt to acquire 1 more -> should block
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 1), context.DeadlineExceeded)

	// TryAcquire should fail instantly
	assert.False(t, c.TryAcquireMemory(1))

	c.ReleaseMemory(10)
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.True(t, c.TryAcquireMemory(5))
	assert.Equal(t, int64(95), c.MemoryUsage())
}

func TestController_MemoryUnblocksOnRelease(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	require.NoError(t, c.AcquireMemory(t.Context(), 80))

	done := make(chan error, 1)
	go func() {
		done <- c.AcquireMemory(t.Context(), 50)
	}()

	select {
	case <-done:
		t.Fatal("acquire should block while memory is held")
	case <-time.After(20 * time.Millisecond):
	}

	c.ReleaseMemory(80)
	require.NoError(t, <-done)
	assert.Equal(t, int64(50), c.MemoryUsage())
}

func TestController_OversizedRequest(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	// Larger than the limit takes the whole budget instead of deadlocking
	require.NoError(t, c.AcquireMemory(t.Context(), 250))
	assert.Equal(t, int64(250), c.MemoryUsage())
	assert.False(t, c.TryAcquireMemory(1))

	c.ReleaseMemory(250)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(100))
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(t.Context(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_ConcurrentMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 64})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if err := c.AcquireMemory(t.Context(), 16); err != nil {
					return
				}
				assert.LessOrEqual(t, c.MemoryUsage(), int64(64))
				c.ReleaseMemory(16)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_NonPositive(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	assert.NoError(t, c.AcquireMemory(t.Context(), -1))
	assert.True(t, c.TryAcquireMemory(0))
	c.ReleaseMemory(-1)
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_MemoryLimit(t *testing.T) {
	assert.Equal(t, int64(1024), NewController(Config{MemoryLimitBytes: 1024}).MemoryLimit())
	assert.Equal(t, int64(0), NewController(Config{}).MemoryLimit())

	var c *Controller
	assert.Equal(t, int64(0), c.MemoryLimit())
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})
	assert.NoError(t, c.AcquireIO(t.Context(), 100))
	assert.True(t, c.TryAcquireIO(100))

	// Unlimited
	c2 := NewController(Config{})
	assert.NoError(t, c2.AcquireIO(t.Context(), 1_000_000))
	assert.True(t, c2.TryAcquireIO(1_000_000))
}

func TestController_IOLargerThanBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1_000_000})

	// 1.5 seconds of budget is split instead of failing WaitN
	start := time.Now()
	require.NoError(t, c.AcquireIO(t.Context(), 1_500_000))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestController_IOContextCanceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1})
	require.NoError(t, c.AcquireIO(t.Context(), 1))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 1))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireMemory(t.Context(), 100))
	assert.True(t, c.TryAcquireMemory(100))
	c.ReleaseMemory(100)

	assert.NoError(t, c.AcquireIO(t.Context(), 100))
	assert.True(t, c.TryAcquireIO(100))
}
