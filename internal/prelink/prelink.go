/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package prelink implements two process-global caches: a byte-budget
// LRU of fully prelinked file outputs, and an entry-bounded LRU of
// dynamic-module outputs.
package prelink

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/adrg/xdg"
	lru "github.com/hashicorp/golang-lru/v2"

	"bennypowers.dev/cem/internal/sourcemap"
)

// DefaultCacheDir returns the prelink cache directory under the xdg
// cache home. The caches in this package are in-memory only and write
// nothing there.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "cem-link", "prelink")
}

// defaultByteBudget is METEOR_APP_PRELINK_CACHE_SIZE's default.
const defaultByteBudget = 20 * 1024 * 1024

// Key identifies one cache entry: {hash, arch, bare, servePath, options}.
// JSON-stringified, it doubles as the map key.
type Key struct {
	Hash      string `json:"hash"`
	Arch      string `json:"arch"`
	Bare      bool   `json:"bare"`
	ServePath string `json:"servePath"`
	Options   string `json:"options,omitempty"` // identity token of the install options, if any
}

func (k Key) String() string {
	data, _ := json.Marshal(k)
	return string(data)
}

// Entry is a fully prelinked {source, sourceMap} pair.
type Entry struct {
	Source    string
	SourceMap *sourcemap.Map
}

func (e Entry) weight() int {
	w := len(e.Source)
	if e.SourceMap != nil {
		if data, err := e.SourceMap.ToJSON(); err == nil {
			w += len(data)
		}
	}
	return w
}

// byteBudgetLRU is a hand-rolled LRU evicting to a total byte weight
// rather than an entry count. None of this module's retrieved dependency
// set offers a weighted/byte-budgeted eviction policy (the ecosystem's
// hashicorp/golang-lru and its v2 generic successor are both strictly
// entry-count-bounded), so this one is an LRU weighted by byte size,
// built directly on container/list.
type byteBudgetLRU struct {
	mu       sync.Mutex
	budget   int
	used     int
	ll       *list.List // front = most recently used
	elements map[string]*list.Element
}

type byteBudgetEntry struct {
	key   string
	value Entry
}

func newByteBudgetLRU(budget int) *byteBudgetLRU {
	return &byteBudgetLRU{
		budget:   budget,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

func (c *byteBudgetLRU) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*byteBudgetEntry).value, true
}

func (c *byteBudgetLRU) Set(key string, value Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		old := el.Value.(*byteBudgetEntry)
		c.used -= old.value.weight()
		old.value = value
		c.used += value.weight()
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&byteBudgetEntry{key: key, value: value})
		c.elements[key] = el
		c.used += value.weight()
	}

	for c.used > c.budget && c.ll.Len() > 0 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*byteBudgetEntry)
		c.used -= entry.value.weight()
		c.ll.Remove(back)
		delete(c.elements, entry.key)
	}
}

// AppPrelinkCache is the byte-budgeted prelinked-output cache. Its budget is read once, on first use, from
// METEOR_APP_PRELINK_CACHE_SIZE, falling back to 20 MiB.
type AppPrelinkCache struct {
	lru *byteBudgetLRU
}

var (
	globalAppCache     *AppPrelinkCache
	globalAppCacheOnce sync.Once
)

// GetAppPrelinkCache returns the process-wide APP_PRELINK_CACHE.
func GetAppPrelinkCache() *AppPrelinkCache {
	globalAppCacheOnce.Do(func() {
		budget := defaultByteBudget
		if v := os.Getenv("METEOR_APP_PRELINK_CACHE_SIZE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				budget = n
			}
		}
		globalAppCache = &AppPrelinkCache{lru: newByteBudgetLRU(budget)}
	})
	return globalAppCache
}

// Get retrieves a cached prelinked output. disableCache, when true,
// always misses without touching the cache.
func (c *AppPrelinkCache) Get(key Key, disableCache bool) (Entry, bool) {
	if disableCache {
		return Entry{}, false
	}
	return c.lru.Get(key.String())
}

// Set stores a prelinked output. A disabled call is a no-op.
func (c *AppPrelinkCache) Set(key Key, value Entry, disableCache bool) {
	if disableCache {
		return
	}
	c.lru.Set(key.String(), value)
}

// dynamicCacheCapacity is the dynamic output cache's entry bound.
const dynamicCacheCapacity = 2048

// DynamicOutputCache is the entry-bounded cache of dynamic-file outputs,
// built on the ecosystem's generic LRU (this module's dependency set
// carries github.com/hashicorp/golang-lru/v2 transitively; promoted here
// to a direct import since it is exactly what an entry-bounded cache
// calls for).
type DynamicOutputCache struct {
	cache *lru.Cache[string, Entry]
}

var (
	globalDynamicCache     *DynamicOutputCache
	globalDynamicCacheOnce sync.Once
)

// GetDynamicOutputCache returns the process-wide DYNAMIC_PRELINKED_OUTPUT_CACHE.
func GetDynamicOutputCache() *DynamicOutputCache {
	globalDynamicCacheOnce.Do(func() {
		c, err := lru.New[string, Entry](dynamicCacheCapacity)
		if err != nil {
			panic(err) // only returns an error for a non-positive capacity, a programmer error
		}
		globalDynamicCache = &DynamicOutputCache{cache: c}
	})
	return globalDynamicCache
}

// DynamicKey identifies one dynamic-output entry: {hash, arch, bare, servePath, dynamic}.
type DynamicKey struct {
	Hash      string `json:"hash"`
	Arch      string `json:"arch"`
	Bare      bool   `json:"bare"`
	ServePath string `json:"servePath"`
	Dynamic   bool   `json:"dynamic"`
}

func (k DynamicKey) String() string {
	data, _ := json.Marshal(k)
	return string(data)
}

func (c *DynamicOutputCache) Get(key DynamicKey) (Entry, bool) {
	return c.cache.Get(key.String())
}

func (c *DynamicOutputCache) Set(key DynamicKey, value Entry) {
	c.cache.Add(key.String(), value)
}
