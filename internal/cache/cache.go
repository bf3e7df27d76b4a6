// Package cache holds decoded objects once, keyed by fullname, and hands out
// proxies that point at them. A Cache is not safe for concurrent use; the
// owning session serializes access.
package cache

import (
	"fmt"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/alphabot-ai/threadline/internal/model"
)

const (
	DefaultCommentCapacity   = 150
	DefaultLinkCapacity      = 100
	DefaultSubredditCapacity = 50
	DefaultAccountCapacity   = 50
)

// Outcome reports how a Lookup was satisfied.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Created
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Created:
		return "created"
	default:
		return "miss"
	}
}

// Cache is a bounded LRU of one object kind.
type Cache[V model.Thing] struct {
	kind model.Kind
	lru  *simplelru.LRU
}

func New[V model.Thing](kind model.Kind, capacity int) (*Cache[V], error) {
	c := &Cache[V]{kind: kind}
	lru, err := simplelru.NewLRU(capacity, func(key, _ interface{}) {
		evictions.WithLabelValues(string(kind)).Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", kind, err)
	}
	c.lru = lru
	return c, nil
}

func (c *Cache[V]) Kind() model.Kind { return c.kind }
func (c *Cache[V]) Len() int         { return c.lru.Len() }

// Put stores v under its fullname, replacing any previous entry.
func (c *Cache[V]) Put(v V) {
	c.lru.Add(v.Fullname(), v)
}

// Get returns the entry for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	c.observe(ok)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Peek returns the entry for key without touching its recency.
func (c *Cache[V]) Peek(key string) (V, bool) {
	v, ok := c.lru.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (c *Cache[V]) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Lookup returns the entry for key. When it is absent and create is not nil,
// create builds it, the result is stored and Created is reported. Creation
// for a key that is already present never runs.
func (c *Cache[V]) Lookup(key string, create func(key string) V) (V, Outcome) {
	if v, ok := c.lru.Get(key); ok {
		requests.WithLabelValues(string(c.kind), Hit.String()).Inc()
		return v.(V), Hit
	}
	if create == nil {
		requests.WithLabelValues(string(c.kind), Miss.String()).Inc()
		var zero V
		return zero, Miss
	}
	v := create(key)
	c.lru.Add(key, v)
	requests.WithLabelValues(string(c.kind), Created.String()).Inc()
	return v, Created
}

func (c *Cache[V]) Remove(key string) bool {
	return c.lru.Remove(key)
}

// Keys returns the cached fullnames from least to most recently used.
func (c *Cache[V]) Keys() []string {
	keys := c.lru.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.(string))
	}
	return out
}

func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Proxy issues a reference to the entry for key if it is cached.
func (c *Cache[V]) Proxy(key string) (model.Proxy, bool) {
	if !c.lru.Contains(key) {
		return model.Proxy{}, false
	}
	return model.Proxy{Kind: c.kind, Fullname: key}, true
}

// Resolve returns the objects the proxies point at, in order, dropping those
// that were evicted or belong to another kind.
func (c *Cache[V]) Resolve(proxies []model.Proxy) []V {
	out := make([]V, 0, len(proxies))
	for _, p := range proxies {
		if p.Kind != c.kind {
			continue
		}
		if v, ok := c.Get(p.Fullname); ok {
			out = append(out, v)
		}
	}
	return out
}

func (c *Cache[V]) observe(hit bool) {
	result := Miss
	if hit {
		result = Hit
	}
	requests.WithLabelValues(string(c.kind), result.String()).Inc()
}
