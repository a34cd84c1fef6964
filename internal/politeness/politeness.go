// Package politeness bounds how hard the crawler leans on target sites:
// global and per-site in-flight caps, jittered inter-request delay, and
// latency-driven adaptive throttling.
package politeness

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config carries the politeness knobs of one run.
type Config struct {
	MaxGlobal  int64
	MaxPerSite int64
	// BaseDelay is the starting minimum delay between requests to a site.
	BaseDelay time.Duration
	// JitterFactor spreads each delay multiplicatively: a factor of 0.5
	// draws from [0.75d, 1.25d].
	JitterFactor float64
	MinDelay     time.Duration
	MaxDelay     time.Duration
	// TargetConcurrency is how many requests the throttle aims to keep
	// outstanding against a healthy site.
	TargetConcurrency float64
}

// Controller enforces the caps. One controller serves a whole run; its
// per-site state is the only mutable part and is guarded per site.
type Controller struct {
	cfg    Config
	global *semaphore.Weighted

	mu    sync.Mutex
	sites map[string]*siteState
	rand  *rand.Rand
}

type siteState struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	delay  time.Duration
	nextAt time.Time
}

func NewController(cfg Config) *Controller {
	if cfg.MaxGlobal < 1 {
		cfg.MaxGlobal = 1
	}
	if cfg.MaxPerSite < 1 {
		cfg.MaxPerSite = 1
	}
	if cfg.TargetConcurrency <= 0 {
		cfg.TargetConcurrency = 2.0
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Controller{
		cfg:    cfg,
		global: semaphore.NewWeighted(cfg.MaxGlobal),
		sites:  make(map[string]*siteState),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Controller) site(name string) *siteState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sites[name]
	if !ok {
		st = &siteState{
			sem:   semaphore.NewWeighted(c.cfg.MaxPerSite),
			delay: c.cfg.BaseDelay,
		}
		c.sites[name] = st
	}
	return st
}

// Acquire blocks until a request to the site may start: both semaphores
// held and the site's jittered delay slot reached. The returned release
// must be called when the request finishes. On cancellation nothing stays
// held.
func (c *Controller) Acquire(ctx context.Context, siteName string) (release func(), err error) {
	st := c.site(siteName)

	if err := c.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := st.sem.Acquire(ctx, 1); err != nil {
		c.global.Release(1)
		return nil, err
	}
	release = func() {
		st.sem.Release(1)
		c.global.Release(1)
	}

	// Claim the next delay slot. Claiming before sleeping keeps
	// concurrent acquirers spaced out instead of waking together.
	st.mu.Lock()
	now := time.Now()
	slot := st.nextAt
	if slot.Before(now) {
		slot = now
	}
	st.nextAt = slot.Add(c.jittered(st.delay))
	st.mu.Unlock()

	if wait := time.Until(slot); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return release, nil
}

// Observe feeds one completed request into the adaptive throttle. A
// success drifts the delay toward latency/target-concurrency; a failure
// doubles it, so even fast errors back the site off toward the ceiling.
func (c *Controller) Observe(siteName string, latency time.Duration, failed bool) {
	st := c.site(siteName)

	st.mu.Lock()
	var next time.Duration
	if failed {
		next = st.delay * 2
	} else {
		target := time.Duration(float64(latency) / c.cfg.TargetConcurrency)
		next = (st.delay + target) / 2
	}
	if next < c.cfg.MinDelay {
		next = c.cfg.MinDelay
	}
	if next > c.cfg.MaxDelay {
		next = c.cfg.MaxDelay
	}
	st.delay = next
	st.mu.Unlock()
}

// Delay reports the site's current inter-request delay.
func (c *Controller) Delay(siteName string) time.Duration {
	st := c.site(siteName)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.delay
}

func (c *Controller) jittered(d time.Duration) time.Duration {
	if c.cfg.JitterFactor <= 0 || d <= 0 {
		return d
	}
	c.mu.Lock()
	f := 1 + c.cfg.JitterFactor*(c.rand.Float64()-0.5)
	c.mu.Unlock()
	return time.Duration(float64(d) * f)
}
