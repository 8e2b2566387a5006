package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	reset time.Time
}

// MemoryCounter keeps windows in process memory. Limits are per instance.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	hits    int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*window), now: time.Now}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, size time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.hits++
	if c.hits%1000 == 0 {
		c.sweep(now)
	}

	w, ok := c.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(size)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.reset.Sub(now), nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.reset) {
			delete(c.windows, k)
		}
	}
}
