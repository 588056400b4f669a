// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the bounded LRU cache shared by the backend's
// derived-resource caches (shader modules, vertex loaders, display lists,
// textures).
//
// Entries often own GPU objects, so every removal path (eviction, Delete,
// Purge) goes through the eviction callback exactly once per entry.
//
//	c := cache.New[uint64, hal.ShaderModule](256, func(_ uint64, m hal.ShaderModule) {
//		device.DestroyShaderModule(m)
//	})
package cache

import "sync"

// EvictFunc is called for every entry leaving the cache.
// It runs with the cache lock held and must not call back into the cache.
type EvictFunc[K comparable, V any] func(key K, value V)

// node is an entry in the recency list. head is the most recently used.
type node[K comparable, V any] struct {
	key        K
	value      V
	prev, next *node[K, V]
}

// Cache is a thread-safe LRU cache with a hard entry limit.
// A limit of 0 means unbounded.
//
// Cache must not be copied after creation.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*node[K, V]
	head    *node[K, V]
	tail    *node[K, V]
	limit   int
	onEvict EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most limit entries.
// onEvict may be nil.
func New[K comparable, V any](limit int, onEvict EvictFunc[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*node[K, V]),
		limit:   limit,
		onEvict: onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.moveToFront(n)
	return n.value, true
}

// Peek returns the value for key without touching recency or statistics.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[key]; ok {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key. A replaced value is passed to the eviction
// callback. If the cache is over its limit afterwards, the least recently
// used entries are evicted.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(key, value)
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. create runs under the cache lock so concurrent callers never
// build the same entry twice. A create error is returned and nothing is
// cached.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[key]; ok {
		c.hits++
		c.moveToFront(n)
		return n.value, nil
	}
	c.misses++
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	c.put(key, v)
	return v, nil
}

// Delete removes key, passing its value to the eviction callback.
// It reports whether the key was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(n)
	return true
}

// Purge removes every entry, least recently used first.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.tail != nil {
		c.remove(c.tail)
	}
}

// Range calls fn for every entry from most to least recently used until fn
// returns false. fn must not call back into the cache.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.head; n != nil; n = n.next {
		if !fn(n.key, n.value) {
			return
		}
	}
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Limit     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.entries),
		Limit:     c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// put inserts or replaces an entry. Caller must hold c.mu.
func (c *Cache[K, V]) put(key K, value V) {
	if n, ok := c.entries[key]; ok {
		old := n.value
		n.value = value
		c.moveToFront(n)
		if c.onEvict != nil {
			c.onEvict(key, old)
		}
		return
	}
	n := &node[K, V]{key: key, value: value}
	c.entries[key] = n
	c.pushFront(n)

	for c.limit > 0 && len(c.entries) > c.limit {
		c.remove(c.tail)
	}
}

// remove unlinks n, deletes it and runs the eviction callback.
// Caller must hold c.mu.
func (c *Cache[K, V]) remove(n *node[K, V]) {
	c.unlink(n)
	delete(c.entries, n.key)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(n.key, n.value)
	}
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	if n == c.head {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}
