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

// Package querycache implements the per-query result cache of spec.md
// §4.2: a session-scoped tier (longer TTL) consulted before a shorter-TTL
// global tier, keyed by a normalized, order-independent query plus an
// options fingerprint. Modeled closely on the two-tier TTL cache pattern
// retrieved from the broader research-orchestrator corpus (a single-tier
// sha256-keyed query cache with ticker-based cleanup), generalized here to
// two tiers as spec.md requires.
package querycache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/deepresearch/internal/paper"
)

// SearchOptions is the subset of source.SearchOptions that affects
// cache key identity (year range, open-access filter and sort order, per spec.md §4.2).
type SearchOptions struct {
	YearFrom     int
	YearTo       int
	OpenAccess   bool
	SortBy       string
}

func (o SearchOptions) optionsKey() string {
	return fmt.Sprintf("%d-%d-%v-%s", o.YearFrom, o.YearTo, o.OpenAccess, o.SortBy)
}

// Result is the cached payload.
type Result struct {
	Papers         []*paper.Paper
	TotalHits      int
	SourceBreakdown map[string]int
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Config configures a Cache.
type Config struct {
	SessionTTL      time.Duration // default 30 min
	GlobalTTL       time.Duration // default 5 min
	MaxGlobalEntries int          // default 200
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.GlobalTTL <= 0 {
		c.GlobalTTL = 5 * time.Minute
	}
	if c.MaxGlobalEntries <= 0 {
		c.MaxGlobalEntries = 200
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Cache is the two-tier query result cache. It is safe for concurrent use
// across sessions.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	global  map[string]*cacheEntry
	globalOrder []string // oldest-first, for eviction

	sessionMu sync.Mutex
	sessions  map[string]map[string]*cacheEntry

	sf singleflight.Group

	paperCache interface {
		Set(p *paper.Paper)
	}
}

// PaperSetter is the narrow interface Cache.Set uses to also populate the
// per-record PaperCache, per spec.md §4.2 ("also call PaperCache.set for
// every paper").
type PaperSetter interface {
	Set(p *paper.Paper)
}

// New creates a Cache. paperCache may be nil to skip per-record population.
func New(cfg Config, paperCache PaperSetter) *Cache {
	c := &Cache{
		cfg:        cfg.withDefaults(),
		global:     make(map[string]*cacheEntry),
		sessions:   make(map[string]map[string]*cacheEntry),
		paperCache: paperCache,
	}
	return c
}

// Normalize lowercases, collapses whitespace, strips non-alphanumerics,
// and sorts tokens so that permutations of the same query collapse to the
// same cache key (spec.md §4.2 and the round-trip law in §8).
func Normalize(query string) string {
	lower := strings.ToLower(query)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func cacheKey(query string, opts SearchOptions) string {
	norm := Normalize(query)
	h := sha256.Sum256([]byte(norm + "|" + opts.optionsKey()))
	return fmt.Sprintf("%x", h[:16])
}

// Get consults the session cache first (if sessionID is non-empty), then
// the global cache, returning the first hit.
func (c *Cache) Get(query string, opts SearchOptions, sessionID string) (Result, bool) {
	key := cacheKey(query, opts)

	if sessionID != "" {
		c.sessionMu.Lock()
		sess, ok := c.sessions[sessionID]
		c.sessionMu.Unlock()
		if ok {
			if e, ok := lookupFresh(sess, key, &c.sessionMu); ok {
				return e.result, true
			}
		}
	}

	c.mu.Lock()
	e, ok := c.global[key]
	if ok && time.Now().Before(e.expiresAt) {
		res := e.result
		c.mu.Unlock()
		return res, true
	}
	if ok {
		delete(c.global, key)
	}
	c.mu.Unlock()
	return Result{}, false
}

func lookupFresh(m map[string]*cacheEntry, key string, mu *sync.Mutex) (*cacheEntry, bool) {
	mu.Lock()
	defer mu.Unlock()
	e, ok := m[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m, key)
		return nil, false
	}
	return e, true
}

// Set writes result to the session cache (if sessionID is non-empty) and
// to the global cache, and populates PaperCache with every returned paper.
func (c *Cache) Set(query string, opts SearchOptions, sessionID string, result Result) {
	key := cacheKey(query, opts)
	now := time.Now()

	if sessionID != "" {
		c.sessionMu.Lock()
		sess, ok := c.sessions[sessionID]
		if !ok {
			sess = make(map[string]*cacheEntry)
			c.sessions[sessionID] = sess
		}
		sess[key] = &cacheEntry{result: result, expiresAt: now.Add(c.cfg.SessionTTL)}
		c.sessionMu.Unlock()
	}

	c.mu.Lock()
	if _, exists := c.global[key]; !exists {
		c.globalOrder = append(c.globalOrder, key)
	}
	c.global[key] = &cacheEntry{result: result, expiresAt: now.Add(c.cfg.GlobalTTL)}
	c.evictOldestLocked()
	c.mu.Unlock()

	if c.paperCache != nil {
		for _, p := range result.Papers {
			c.paperCache.Set(p)
		}
	}
}

// evictOldestLocked drops the oldest global entries once MaxGlobalEntries
// is exceeded. Must be called with c.mu held.
func (c *Cache) evictOldestLocked() {
	for len(c.global) > c.cfg.MaxGlobalEntries && len(c.globalOrder) > 0 {
		oldest := c.globalOrder[0]
		c.globalOrder = c.globalOrder[1:]
		delete(c.global, oldest)
	}
}

// ReleaseSession drops a session's cache tier entirely (called when the
// owning Session is removed).
func (c *Cache) ReleaseSession(sessionID string) {
	c.sessionMu.Lock()
	delete(c.sessions, sessionID)
	c.sessionMu.Unlock()
}

// GetOrCompute looks up (query, opts, sessionID); on a miss it invokes
// compute exactly once even if called concurrently for the same key
// (collapsing a cache-stampede across concurrently-running search rounds),
// caches the result, and returns it.
func (c *Cache) GetOrCompute(query string, opts SearchOptions, sessionID string, compute func() (Result, error)) (Result, error) {
	if res, ok := c.Get(query, opts, sessionID); ok {
		return res, nil
	}

	key := cacheKey(query, opts) + "|" + sessionID
	v, err, _ := c.sf.Do(key, func() (any, error) {
		if res, ok := c.Get(query, opts, sessionID); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return Result{}, err
		}
		c.Set(query, opts, sessionID, res)
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}
