// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package caching

import (
	"sync"
	"time"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/inheritance"
	"github.com/permforge/permforge/internal/node"
)

// partition holds the cached permission data for one holder, keyed by the
// canonical context-set encoding. Each holder has its own lock so a miss
// being computed for one holder never blocks lookups for another.
type partition struct {
	mu        sync.RWMutex
	byContext map[string]*PermissionData
}

// Cache memoizes inheritance resolution per (holder, context) pair.
//
// Entries have no TTL; they are dropped synchronously by Invalidate whenever
// a write path changes a holder or one of its ancestor groups. A reverse
// used-by index, populated from each resolution's touched-group list, turns a
// group mutation into invalidation of every dependent holder without walking
// the membership graph.
type Cache struct {
	resolver *inheritance.Resolver
	now      func() time.Time

	partitions sync.Map // holder identifier -> *partition

	depMu  sync.Mutex
	usedBy map[string]map[string]struct{} // group name -> dependent holder IDs
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the resolution clock, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache over the given resolver.
func NewCache(resolver *inheritance.Resolver, opts ...Option) *Cache {
	c := &Cache{
		resolver: resolver,
		now:      time.Now,
		usedBy:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the memoized permission data for (h, query), resolving and
// storing it on a miss. Two goroutines racing the same miss may both resolve;
// the first write wins and the results are identical, so the race is benign.
func (c *Cache) Get(h holder.Holder, query contexts.ImmutableContextSet) *PermissionData {
	id := h.Identifier()
	part := c.partition(id)
	ctxKey := query.Key()

	part.mu.RLock()
	data, ok := part.byContext[ctxKey]
	part.mu.RUnlock()
	if ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		return data
	}

	lookupsTotal.WithLabelValues("miss").Inc()
	start := time.Now()
	res := c.resolver.Resolve(h, query, c.now())
	resolveDuration.Observe(time.Since(start).Seconds())

	computed := BuildPermissionData(query, res)
	c.recordDependencies(id, res.Touched)

	part.mu.Lock()
	if existing, ok := part.byContext[ctxKey]; ok {
		// Lost the race; the stored result is equivalent.
		part.mu.Unlock()
		return existing
	}
	part.byContext[ctxKey] = computed
	part.mu.Unlock()
	return computed
}

// PermissionValue answers a single permission lookup through the cache.
func (c *Cache) PermissionValue(h holder.Holder, query contexts.ImmutableContextSet, key string) node.Tristate {
	return c.Get(h, query).PermissionValue(key)
}

// Invalidate drops all cached data for the holder and, when the identifier
// names a group, for every holder whose cached data was resolved through it.
// Synchronous: once it returns, no subsequent read sees stale data.
func (c *Cache) Invalidate(holderID string) {
	c.partitions.Delete(holderID)
	invalidationsTotal.Inc()

	c.depMu.Lock()
	dependents := c.usedBy[holderID]
	delete(c.usedBy, holderID)
	c.depMu.Unlock()

	// Touched-group lists are transitively complete, so one level of
	// dependents covers indirect inheritance.
	for dep := range dependents {
		c.partitions.Delete(dep)
	}
}

// InvalidateAll drops everything; used when a configuration change alters
// resolution inputs globally.
func (c *Cache) InvalidateAll() {
	c.partitions.Range(func(k, _ any) bool {
		c.partitions.Delete(k)
		return true
	})
	c.depMu.Lock()
	c.usedBy = make(map[string]map[string]struct{})
	c.depMu.Unlock()
	invalidationsTotal.Inc()
}

func (c *Cache) partition(id string) *partition {
	if p, ok := c.partitions.Load(id); ok {
		return p.(*partition)
	}
	p, _ := c.partitions.LoadOrStore(id, &partition{byContext: make(map[string]*PermissionData)})
	return p.(*partition)
}

func (c *Cache) recordDependencies(holderID string, touched []string) {
	if len(touched) == 0 {
		return
	}
	c.depMu.Lock()
	defer c.depMu.Unlock()
	for _, group := range touched {
		deps, ok := c.usedBy[group]
		if !ok {
			deps = make(map[string]struct{})
			c.usedBy[group] = deps
		}
		deps[holderID] = struct{}{}
	}
}
