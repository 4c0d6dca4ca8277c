// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package containers

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LruCache is a mutex-guarded fixed size LRU.
// A zero or negative size means it has no capacity instead of unlimited.
type LruCache[K comparable, V any] struct {
	mutex sync.Mutex
	inner *simplelru.LRU[K, V]
}

func NewLruCache[K comparable, V any](size int) *LruCache[K, V] {
	return NewLruCacheWithOnEvict[K, V](size, nil)
}

func NewLruCacheWithOnEvict[K comparable, V any](size int, onEvict func(K, V)) *LruCache[K, V] {
	var inner *simplelru.LRU[K, V]
	if size > 0 {
		// Can't fail because size > 0
		inner, _ = simplelru.NewLRU[K, V](size, onEvict)
	}
	return &LruCache[K, V]{inner: inner}
}

func (c *LruCache[K, V]) Add(key K, value V) {
	if c.inner == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inner.Add(key, value)
}

func (c *LruCache[K, V]) Get(key K) (V, bool) {
	if c.inner == nil {
		var empty V
		return empty, false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.inner.Get(key)
}

func (c *LruCache[K, V]) Contains(key K) bool {
	if c.inner == nil {
		return false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.inner.Contains(key)
}

func (c *LruCache[K, V]) Len() int {
	if c.inner == nil {
		return 0
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.inner.Len()
}

func (c *LruCache[K, V]) Clear() {
	if c.inner == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inner.Purge()
}
