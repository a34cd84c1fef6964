package politeness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxGlobal:    4,
		MaxPerSite:   2,
		BaseDelay:    time.Millisecond,
		JitterFactor: 0.5,
		MinDelay:     time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
}

// TestGlobalCapNeverExceeded verifies the global ceiling holds under a
// bursty load spread across many sites.
func TestGlobalCapNeverExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGlobal = 5
	cfg.MaxPerSite = 5
	c := NewController(cfg)

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			siteName := fmt.Sprintf("site-%d", i%7)
			release, err := c.Acquire(context.Background(), siteName)
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond) // simulate near-simultaneous completion
			atomic.AddInt64(&inFlight, -1)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(5))
}

// TestPerSiteCap verifies the per-site ceiling holds even when the global
// cap has headroom.
func TestPerSiteCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGlobal = 100
	cfg.MaxPerSite = 3
	c := NewController(cfg)

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Acquire(context.Background(), "one-site")
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

// TestAcquireCancelled verifies cancellation while waiting holds nothing.
func TestAcquireCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.MaxGlobal = 1
	cfg.MaxPerSite = 1
	c := NewController(cfg)

	release, err := c.Acquire(context.Background(), "site")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "site")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	// The slot freed by release must be acquirable again.
	release2, err := c.Acquire(context.Background(), "site")
	require.NoError(t, err)
	release2()
}

// TestObserveRaisesDelayOnLatency verifies sustained slow responses drive
// the delay up toward the ceiling.
func TestObserveRaisesDelayOnLatency(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 2 * time.Millisecond
	cfg.MaxDelay = 40 * time.Millisecond
	c := NewController(cfg)

	before := c.Delay("slow-site")
	for i := 0; i < 20; i++ {
		c.Observe("slow-site", 500*time.Millisecond, false)
	}
	after := c.Delay("slow-site")

	assert.Greater(t, after, before)
	assert.LessOrEqual(t, after, cfg.MaxDelay)
}

// TestObserveRelaxesDelayToFloor verifies fast responses decay the delay
// back down, but never below the floor.
func TestObserveRelaxesDelayToFloor(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 30 * time.Millisecond
	cfg.MinDelay = 5 * time.Millisecond
	cfg.MaxDelay = 60 * time.Millisecond
	c := NewController(cfg)

	for i := 0; i < 50; i++ {
		c.Observe("fast-site", time.Millisecond, false)
	}
	assert.Equal(t, cfg.MinDelay, c.Delay("fast-site"))
}

// TestObserveErrorsBackOff verifies failures raise the delay even when
// they return quickly, all the way to the ceiling under a sustained
// error streak.
func TestObserveErrorsBackOff(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 2 * time.Millisecond
	cfg.MinDelay = 2 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	c := NewController(cfg)

	before := c.Delay("broken-site")
	c.Observe("broken-site", 100*time.Microsecond, true)
	assert.Greater(t, c.Delay("broken-site"), before,
		"a fast failure must still raise the delay")

	for i := 0; i < 100; i++ {
		c.Observe("broken-site", 100*time.Microsecond, true)
	}
	assert.Equal(t, cfg.MaxDelay, c.Delay("broken-site"))
}

// TestDelaySpacing verifies consecutive acquisitions to one site are
// spaced by at least part of the configured delay.
func TestDelaySpacing(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = 30 * time.Millisecond
	cfg.MinDelay = 30 * time.Millisecond
	cfg.JitterFactor = 0 // deterministic spacing for the assertion
	c := NewController(cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := c.Acquire(context.Background(), "spaced-site")
		require.NoError(t, err)
		release()
	}
	elapsed := time.Since(start)

	// Three acquisitions claim slots at 0ms, 30ms and 60ms.
	assert.GreaterOrEqual(t, elapsed, 55*time.Millisecond)
}
