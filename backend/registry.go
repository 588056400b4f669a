// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"sort"
	"sync"
)

// Factory creates an API value.
type Factory func() API

var (
	registryMu sync.RWMutex
	apis       = make(map[string]Factory)
	// Priority order for selection (first available wins).
	// Vulkan > Noop (noop is the headless fallback).
	apiPriority = []string{Vulkan, Noop}
)

// Register registers an API factory under name. A later registration with
// the same name replaces the earlier one.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	apis[name] = factory
}

// Unregister removes an API from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(apis, name)
}

// Available returns the registered API names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(apis))
	for name := range apis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an API with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := apis[name]
	return ok
}

// Get returns the API registered under name, or nil.
func Get(name string) API {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := apis[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the highest-priority registered API, or nil when nothing
// is registered.
func Default() API {
	if l := byPriority(); len(l) > 0 {
		return l[0]
	}
	return nil
}

// byPriority returns every registered API, priority list first, then the
// rest by name.
func byPriority() []API {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]API, 0, len(apis))
	seen := make(map[string]bool, len(apiPriority))
	for _, name := range apiPriority {
		if factory, ok := apis[name]; ok {
			if a := factory(); a != nil {
				out = append(out, a)
			}
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(apis))
	for name := range apis {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		if a := apis[name](); a != nil {
			out = append(out, a)
		}
	}
	return out
}
