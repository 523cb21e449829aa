package polygon

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Store is the append-only collection of every Record fetched in a session.
// Insertion order is preserved; lookups by id are O(1). Ids are unique:
// appending a record whose id is already present is a no-op, so the first
// record seen for an id is the one kept.
//
// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	order []Record
	byID  map[string]int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Append adds recs in order and returns how many were new.
func (s *Store) Append(recs ...Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, r := range recs {
		if _, dup := s.byID[r.ID]; dup {
			continue
		}
		s.byID[r.ID] = len(s.order)
		s.order = append(s.order, r)
		added++
	}
	return added
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.order[i], true
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// All returns a copy of every record in insertion order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.order))
	copy(out, s.order)
	return out
}

// HitTest returns the first record, in insertion order, whose ring contains
// the coordinate. include filters candidates by id; nil accepts all.
func (s *Store) HitTest(lat, lng float64, include func(id string) bool) (Record, bool) {
	pt := orb.Point{lng, lat}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.order {
		if !r.Bounds.Contains(lat, lng) {
			continue
		}
		if include != nil && !include(r.ID) {
			continue
		}
		if planar.RingContains(r.Ring, pt) {
			return r, true
		}
	}
	return Record{}, false
}
