// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"fmt"
	"hash/maphash"

	"github.com/gogpu/gpuvideo/internal/cache"
	"github.com/gogpu/gpuvideo/internal/env"
)

const (
	dlCacheSize = 256
	// dlRevalidate is how many calls a cached list serves before its
	// source memory is hashed again.
	dlRevalidate = 16
)

type dlKey struct {
	addr, size uint32
}

type dlEntry struct {
	data []byte
	hash uint64
	uses int
}

// DLCache caches display lists read from emulated memory. Entries are
// checked against memory every dlRevalidate calls, so a list rewritten
// by the host is picked up after at most that many calls.
type DLCache struct {
	ctx     *env.Context
	seed    maphash.Seed
	entries *cache.Cache[dlKey, *dlEntry]

	reloads uint64
}

// NewDLCache returns an empty cache.
func NewDLCache(ctx *env.Context) *DLCache {
	return &DLCache{ctx: ctx, seed: maphash.MakeSeed()}
}

// Init creates the entry table.
func (c *DLCache) Init() error {
	c.entries = cache.New[dlKey, *dlEntry](dlCacheSize, nil)
	c.reloads = 0
	return nil
}

// Shutdown drops every entry.
func (c *DLCache) Shutdown() error {
	c.Clear()
	return nil
}

// Clear drops every entry.
func (c *DLCache) Clear() {
	if c.entries != nil {
		c.entries.Purge()
	}
}

// Len returns the number of cached lists.
func (c *DLCache) Len() int { return c.entries.Len() }

// Reloads returns how many times a cached list was found stale.
func (c *DLCache) Reloads() uint64 { return c.reloads }

// Fetch returns the display list at addr. When the cache is disabled in
// the active config the list is read from memory every time.
func (c *DLCache) Fetch(addr, size uint32) ([]byte, error) {
	if !c.ctx.Config().Settings.DLCache {
		return c.read(addr, size)
	}
	k := dlKey{addr, size}
	if e, ok := c.entries.Get(k); ok {
		e.uses++
		if e.uses%dlRevalidate != 0 {
			return e.data, nil
		}
		data, err := c.read(addr, size)
		if err != nil {
			return nil, err
		}
		if h := maphash.Bytes(c.seed, data); h != e.hash {
			e.data, e.hash = data, h
			c.reloads++
		}
		return e.data, nil
	}
	data, err := c.read(addr, size)
	if err != nil {
		return nil, err
	}
	c.entries.Put(k, &dlEntry{data: data, hash: maphash.Bytes(c.seed, data)})
	return data, nil
}

func (c *DLCache) read(addr, size uint32) ([]byte, error) {
	if c.ctx.Memory == nil || int64(addr)+int64(size) > c.ctx.Memory.Size() {
		return nil, fmt.Errorf("%w: display list of %d bytes at %#x", env.ErrMemoryRange, size, addr)
	}
	buf := make([]byte, size)
	if err := c.ctx.ReadMem(buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}
