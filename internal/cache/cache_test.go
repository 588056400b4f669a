// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestCacheGetPut(t *testing.T) {
	c := New[string, int](0, nil)
	c.Put("a", 1)

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit and 1 miss", st)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // b is now least recently used
	c.Put("c", 3)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Peek("a"); !ok {
		t.Error("a should survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheReplaceEvictsOldValue(t *testing.T) {
	var got []int
	c := New[string, int](0, func(_ string, v int) { got = append(got, v) })
	c.Put("k", 1)
	c.Put("k", 2)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("evicted values = %v, want [1]", got)
	}
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("Get(k) = %d, want 2", v)
	}
}

func TestCachePurgeCallsEvictForAll(t *testing.T) {
	n := 0
	c := New[int, int](0, func(int, int) { n++ })
	for i := range 5 {
		c.Put(i, i)
	}
	c.Purge()
	if n != 5 {
		t.Errorf("evict callbacks = %d, want 5", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
}

func TestCacheDelete(t *testing.T) {
	n := 0
	c := New[int, int](0, func(int, int) { n++ })
	c.Put(1, 1)
	if !c.Delete(1) {
		t.Error("Delete(1) = false, want true")
	}
	if c.Delete(1) {
		t.Error("second Delete(1) = true, want false")
	}
	if n != 1 {
		t.Errorf("evict callbacks = %d, want 1", n)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[int, string](0, nil)
	calls := 0
	create := func() (string, error) {
		calls++
		return "made", nil
	}

	for range 3 {
		v, err := c.GetOrCreate(7, create)
		if err != nil || v != "made" {
			t.Fatalf("GetOrCreate() = (%q, %v)", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create calls = %d, want 1", calls)
	}

	errBoom := errors.New("boom")
	if _, err := c.GetOrCreate(8, func() (string, error) { return "", errBoom }); !errors.Is(err, errBoom) {
		t.Errorf("GetOrCreate() error = %v, want %v", err, errBoom)
	}
	if _, ok := c.Peek(8); ok {
		t.Error("failed create must not be cached")
	}
}

func TestCacheRangeOrder(t *testing.T) {
	c := New[int, int](0, nil)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)
	c.Get(1)

	var keys []int
	c.Range(func(k, _ int) bool {
		keys = append(keys, k)
		return true
	})
	want := []int{1, 3, 2}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Range order = %v, want %v", keys, want)
		}
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int, int](64, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				k := (g*1000 + i) % 128
				_, _ = c.GetOrCreate(k, func() (int, error) { return k, nil })
			}
		}()
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Errorf("Len() = %d, exceeds limit 64", c.Len())
	}
}
