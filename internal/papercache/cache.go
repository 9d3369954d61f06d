// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package papercache implements the per-record LRU+TTL cache described in
// spec.md §4.1: a single mapping from Paper id to an entry, evicted by a
// composite score that makes high-availability, recently-touched records
// sticky rather than plain recency order.
package papercache

import (
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// Config configures a Cache.
type Config struct {
	// MaxEntries bounds the number of distinct papers held at once.
	MaxEntries int

	// TTL is how long after insertion an entry is treated as absent and
	// evicted lazily on the next get/cleanup sweep; access does not extend it.
	TTL time.Duration

	// PreferHigherAvailability enables the availability-weight term in the
	// eviction composite score (spec.md §4.1).
	PreferHigherAvailability bool

	// CleanupInterval is the background sweep period. Zero disables the
	// background goroutine; Cleanup() may still be called opportunistically.
	CleanupInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxEntries <= 0 {
		out.MaxEntries = 5000
	}
	if out.TTL <= 0 {
		out.TTL = 24 * time.Hour
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

type entry struct {
	paper       *paper.Paper
	insertedAt  time.Time
	lastAccess  time.Time
	accessCount int64
}

// Stats summarizes cache activity for observability.
type Stats struct {
	Entries             int
	Hits                int64
	Misses              int64
	BySource            map[string]int
	ByAvailability      map[string]int
	EstimatedMemoryBytes int64
}

// Cache is the per-record LRU+TTL cache of spec.md §4.1. The underlying
// hashicorp/golang-lru map+list is used purely for its O(1) get/add/remove
// bookkeeping; it is sized one above MaxEntries and eviction is driven by our
// own composite-score scan, never by the library's built-in recency policy.
type Cache struct {
	mu  sync.Mutex
	cfg Config
	lru *lru.Cache[string, *entry]

	hits   int64
	misses int64

	stopCh chan struct{}
}

// New creates a PaperCache and, if CleanupInterval > 0, starts its
// background sweep goroutine.
func New(cfg Config) *Cache {
	resolved := cfg.withDefaults()
	// Sized one above resolved.MaxEntries: we evict manually before ever
	// letting it reach resolved.MaxEntries, so its own eviction never fires.
	l, err := lru.New[string, *entry](resolved.MaxEntries + 1)
	if err != nil {
		panic(err) // only possible on size <= 0, which withDefaults prevents
	}
	c := &Cache{cfg: resolved, lru: l, stopCh: make(chan struct{})}
	if resolved.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Stop halts the background cleanup goroutine, if one was started.
func (c *Cache) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// Get returns the cached paper for id, or (nil, false) on a miss or on an
// expired entry (which is evicted as a side effect). A miss is never an
// error.
func (c *Cache) Get(id string) (*paper.Paper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(id)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.expired(e) {
		c.lru.Remove(id)
		c.misses++
		return nil, false
	}
	now := time.Now()
	e.lastAccess = now
	e.accessCount++
	c.hits++
	return e.paper, true
}

func (c *Cache) expired(e *entry) bool {
	return time.Since(e.insertedAt) > c.cfg.TTL
}

// Set inserts p, or — if an existing entry has greater-or-equal
// availability — discards p and merely refreshes the existing entry's
// access counters (stronger records dominate, per spec.md §4.1).
func (c *Cache) Set(p *paper.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if existing, ok := c.lru.Get(p.ID); ok && !c.expired(existing) {
		if existing.paper.DataAvailability >= p.DataAvailability {
			existing.lastAccess = now
			existing.accessCount++
			return
		}
		existing.paper = p
		existing.lastAccess = now
		existing.accessCount++
		return
	}

	c.evictIfFull()
	c.lru.Add(p.ID, &entry{paper: p, insertedAt: now, lastAccess: now, accessCount: 0})
}

// Update merges p into any existing entry (preserving the higher
// availability record as the base, per paper.Merge), inserting p as-is if
// no entry exists yet.
func (c *Cache) Update(p *paper.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if existing, ok := c.lru.Get(p.ID); ok && !c.expired(existing) {
		existing.paper = paper.Merge(existing.paper, p)
		existing.lastAccess = now
		existing.accessCount++
		return
	}

	c.evictIfFull()
	c.lru.Add(p.ID, &entry{paper: p, insertedAt: now, lastAccess: now, accessCount: 0})
}

// evictIfFull removes the lowest composite-scored entry when the cache is
// at MaxEntries. Must be called with c.mu held.
func (c *Cache) evictIfFull() {
	if c.lru.Len() < c.cfg.MaxEntries {
		return
	}
	var (
		victim    string
		found     bool
		bestScore float64
	)
	for _, id := range c.lru.Keys() {
		e, ok := c.lru.Peek(id)
		if !ok {
			continue
		}
		score := c.score(e)
		if !found || score < bestScore {
			bestScore = score
			victim = id
			found = true
		}
	}
	if found {
		c.lru.Remove(victim)
	}
}

// score implements spec.md §4.1's composite eviction score:
// availabilityWeight·A + lastAccess + 10000·accessCount.
func (c *Cache) score(e *entry) float64 {
	var availabilityWeight float64
	if c.cfg.PreferHigherAvailability {
		availabilityWeight = float64(e.paper.DataAvailability)
	}
	return availabilityWeight + float64(e.lastAccess.Unix()) + 10000*float64(e.accessCount)
}

// Cleanup sweeps expired entries once, synchronously.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, id := range c.lru.Keys() {
		e, ok := c.lru.Peek(id)
		if !ok {
			continue
		}
		if c.expired(e) {
			c.lru.Remove(id)
			removed++
		}
	}
	return removed
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.cfg.Logger.Debug("papercache cleanup", "removed", n)
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stats returns a point-in-time snapshot of cache activity.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:        c.lru.Len(),
		Hits:           c.hits,
		Misses:         c.misses,
		BySource:       map[string]int{},
		ByAvailability: map[string]int{},
	}
	for _, id := range c.lru.Keys() {
		e, ok := c.lru.Peek(id)
		if !ok {
			continue
		}
		s.ByAvailability[e.paper.DataAvailability.String()]++
		for _, src := range e.paper.SourceOrigin {
			s.BySource[src]++
		}
		s.EstimatedMemoryBytes += estimateSize(e.paper)
	}
	return s
}

func estimateSize(p *paper.Paper) int64 {
	n := len(p.Title) + len(p.Abstract) + len(p.Journal) + len(p.Venue)
	for _, a := range p.Authors {
		n += len(a)
	}
	return int64(n) + 256 // fixed overhead per struct
}
