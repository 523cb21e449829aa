package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/polyview/polyview/pkg/viewport"
)

// Cycle is the trimmed view of a viewport.Report kept per session.
type Cycle struct {
	Key        string        `json:"key"`
	Outcome    string        `json:"outcome"`
	SubBoxes   int           `json:"sub_boxes"`
	Failed     int           `json:"failed"`
	Fetched    int           `json:"fetched"`
	Delivered  int           `json:"delivered"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Session summarises one map session.
type Session struct {
	ID        string         `json:"id"`
	Remote    string         `json:"remote,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Cycles    map[string]int `json:"cycles"`
	LastCycle *Cycle         `json:"last_cycle,omitempty"`
	Stats     viewport.Stats `json:"stats"`
}

// Active reports whether the session's connection is still open.
func (s Session) Active() bool { return s.EndedAt == nil }

func (s Session) clone() Session {
	out := s
	out.Cycles = make(map[string]int, len(s.Cycles))
	for k, v := range s.Cycles {
		out.Cycles[k] = v
	}
	if s.LastCycle != nil {
		c := *s.LastCycle
		out.LastCycle = &c
	}
	if s.EndedAt != nil {
		e := *s.EndedAt
		out.EndedAt = &e
	}
	return out
}

// Store is a thread-safe registry of map sessions keyed by id.
// Ended sessions stay listed for the TTL, then a background goroutine (Run)
// evicts them. Open sessions are never evicted.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Session
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL for ended sessions.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Session),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Open registers a new session.
func (s *Store) Open(id, remote string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = &Session{
		ID:        id,
		Remote:    remote,
		StartedAt: s.now().UTC(),
		Cycles:    make(map[string]int),
	}
}

// RecordCycle counts rep against the session and keeps it as LastCycle.
// Unknown ids are ignored.
func (s *Store) RecordCycle(id string, rep viewport.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok {
		return
	}
	name := rep.Outcome.String()
	sess.Cycles[name]++
	sess.LastCycle = &Cycle{
		Key:        string(rep.Key),
		Outcome:    name,
		SubBoxes:   rep.SubBoxes,
		Failed:     rep.Failed,
		Fetched:    rep.Fetched,
		Delivered:  rep.Delivered,
		Duration:   rep.Duration,
		FinishedAt: s.now().UTC(),
	}
}

// UpdateStats replaces the session's state snapshot.
func (s *Store) UpdateStats(id string, st viewport.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[id]; ok {
		sess.Stats = st
	}
}

// Close marks the session ended. Its TTL starts now.
func (s *Store) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[id]; ok && sess.EndedAt == nil {
		t := s.now().UTC()
		sess.EndedAt = &t
	}
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// List returns copies of every session held, oldest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.data))
	for _, sess := range s.data {
		out = append(out, sess.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the total number of sessions held, including ended ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Active returns the number of open sessions.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.data {
		if sess.EndedAt == nil {
			n++
		}
	}
	return n
}

// Evict removes sessions that ended at or before now minus TTL.
// It returns the number of sessions removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, sess := range s.data {
		if sess.EndedAt != nil && !sess.EndedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted ended sessions", "count", n)
			}
		}
	}
}
