package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
}

// Hooks receive the cache key on each lookup outcome.
type Hooks struct {
	OnHit  func(key string)
	OnMiss func(key string)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a small TTL cache whose concurrent misses for the same key
// share one loader call. Loader errors are never cached.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	order []string
	opts  Options
	hooks Hooks
	sf    singleflight.Group
	now   func() time.Time
}

type Loader[V any] func(ctx context.Context) (V, error)

func New[V any](opts Options, hooks Hooks) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	return &Cache[V]{
		items: make(map[string]entry[V]),
		opts:  opts,
		hooks: hooks,
		now:   time.Now,
	}
}

func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		if c.hooks.OnHit != nil {
			c.hooks.OnHit(key)
		}
		return e.value, nil
	}

	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(key)
	}
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx)
		if err != nil {
			return val, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = entry[V]{value: val, expiresAt: c.now().Add(c.opts.TTL)}
	c.evictIfNeeded()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// FIFO eviction; oldest inserted key goes first.
func (c *Cache[V]) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}
