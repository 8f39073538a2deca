package github

import "sync"

// cache memoizes read-mostly API responses to bound call volume during a
// run. Freshness-critical queries (PR state, check runs, workflow runs)
// never go through it. invalidate drops everything; it is called after
// mutations that change paginated listings.
type cache struct {
	mu      sync.Mutex
	entries map[string]any
}

func newCache() *cache {
	return &cache{entries: make(map[string]any)}
}

func (c *cache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}

func cachedCall[T any](c *cache, key string, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v.(T), nil
	}
	c.mu.Unlock()

	v, err := fn()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	return v, nil
}
