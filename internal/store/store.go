// Package store implements the Session Store component (spec §4.C): the
// authoritative session map. The store is not itself a lock — the
// coordinator provides per-session exclusive access and is the only legal
// writer; Store's own mutex only protects the map of pointers, not the
// Session values it holds.
package store

import (
	"sync"

	"crab.casa/activities/internal/session"
)

// Filter narrows List's results. A zero Filter matches every session.
type Filter struct {
	Status session.Status
	All    bool
}

// Snapshotter is the optional durable-backing collaborator (spec §4.C):
// "snapshot on each mutation, read on cold start". The default Store runs
// without one, and no implementation ships in this module.
type Snapshotter interface {
	Save(s *session.Session)
	Delete(id string)
}

type noopSnapshotter struct{}

func (noopSnapshotter) Save(*session.Session) {}
func (noopSnapshotter) Delete(string)         {}

// Store is a process-wide map[sessionID]*Session, safe for concurrent use
// across sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	snapshot Snapshotter
}

// New builds an empty Store with no durable backing.
func New() *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
		snapshot: noopSnapshotter{},
	}
}

// WithSnapshotter wires s itself to use the given Snapshotter for
// durability and returns s.
func (s *Store) WithSnapshotter(snap Snapshotter) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	return s
}

// Load returns the session for id, or (nil, false) if absent.
func (s *Store) Load(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Save installs sess under its ID, replacing any prior entry, and fires
// the optional durable snapshot.
func (s *Store) Save(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	snap := s.snapshot
	s.mu.Unlock()
	snap.Save(sess)
}

// Delete removes id from the store.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	snap := s.snapshot
	s.mu.Unlock()
	snap.Delete(id)
}

// List returns every session matching filter. The returned slice is a
// snapshot copy of pointers; callers must not mutate the filter contents
// without going through the owning coordinator.
func (s *Store) List(filter Filter) []*session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if filter.All || filter.Status == "" || sess.Status == filter.Status {
			out = append(out, sess)
		}
	}
	return out
}
