// Package cache tracks what a map session has already fetched and drawn.
//
// Three monotone sets live here:
//   - cache markers: spatial keys whose fetch cycle fully completed
//   - visited keys: spatial keys already fetched (written alongside markers)
//   - rendered ids: polygon ids already handed to the display layer
//
// Nothing is ever removed. Has is a coarse pre-filter: a key that is present
// skips the whole fetch cycle for that viewport for the rest of the session.
//
// The mutex only protects the maps. Callers that check Has and later Commit
// are not atomic with respect to each other; two overlapping fetch cycles for
// the same key can both pass the check before either commits.
package cache

import (
	"sync"

	"github.com/polyview/polyview/pkg/geo"
)

// Stats is a point-in-time count of each set.
type Stats struct {
	Cached   int `json:"cached"`
	Visited  int `json:"visited"`
	Rendered int `json:"rendered"`
}

// Cache holds the session's key and id sets. The zero value is not usable;
// call New.
type Cache struct {
	mu       sync.RWMutex
	cached   map[geo.SpatialKey]struct{}
	visited  map[geo.SpatialKey]struct{}
	rendered map[string]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		cached:   make(map[geo.SpatialKey]struct{}),
		visited:  make(map[geo.SpatialKey]struct{}),
		rendered: make(map[string]struct{}),
	}
}

// Has reports whether key carries a cache marker.
func (c *Cache) Has(key geo.SpatialKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cached[key]
	return ok
}

// Put writes a cache marker for key.
func (c *Cache) Put(key geo.SpatialKey) {
	c.mu.Lock()
	c.cached[key] = struct{}{}
	c.mu.Unlock()
}

// Visited reports whether key has been marked visited.
func (c *Cache) Visited(key geo.SpatialKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.visited[key]
	return ok
}

// MarkVisited records key as visited.
func (c *Cache) MarkVisited(key geo.SpatialKey) {
	c.mu.Lock()
	c.visited[key] = struct{}{}
	c.mu.Unlock()
}

// Commit marks key visited and writes its cache marker in one step.
func (c *Cache) Commit(key geo.SpatialKey) {
	c.mu.Lock()
	c.visited[key] = struct{}{}
	c.cached[key] = struct{}{}
	c.mu.Unlock()
}

// IsRendered reports whether the polygon id was already delivered.
func (c *Cache) IsRendered(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rendered[id]
	return ok
}

// MarkRendered records id as delivered.
func (c *Cache) MarkRendered(id string) {
	c.mu.Lock()
	c.rendered[id] = struct{}{}
	c.mu.Unlock()
}

// Stats returns the current size of each set.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Cached:   len(c.cached),
		Visited:  len(c.visited),
		Rendered: len(c.rendered),
	}
}
