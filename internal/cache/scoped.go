// Package cache provides the explicit in-process cache shared by the
// orchestrators. It is built once at startup and injected.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const sep = "\x00"

// Scoped is an expiring LRU whose keys live in named scopes, so everything
// cached for one user or catalog can be dropped at once.
type Scoped[V any] struct {
	lru *expirable.LRU[string, V]
}

func NewScoped[V any](size int, ttl time.Duration) *Scoped[V] {
	if size <= 0 {
		size = 1024
	}
	return &Scoped[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *Scoped[V]) Get(scope, key string) (V, bool) {
	return c.lru.Get(scope + sep + key)
}

func (c *Scoped[V]) Set(scope, key string, value V) {
	c.lru.Add(scope+sep+key, value)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are returned and nothing is cached.
func (c *Scoped[V]) GetOrLoad(scope, key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(scope, key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(scope, key, v)
	return v, nil
}

func (c *Scoped[V]) Remove(scope, key string) {
	c.lru.Remove(scope + sep + key)
}

func (c *Scoped[V]) InvalidateScope(scope string) {
	prefix := scope + sep
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

func (c *Scoped[V]) Purge() {
	c.lru.Purge()
}

func (c *Scoped[V]) Len() int {
	return c.lru.Len()
}
