// Package permit implements the Permit Registry component (spec §4.E):
// short-lived, single-use tokens proving an HTTP join preceded a websocket
// attach. Accessed concurrently from the HTTP join path (grant) and the
// websocket upgrade path (consume); one registry-wide mutex makes each
// grant and consume atomic.
package permit

import (
	"sync"
	"time"
)

type key struct {
	sessionID string
	userID    string
}

type entry struct {
	expiresAt time.Time
}

// Registry grants and consumes permits. Zero value is not usable; use New.
type Registry struct {
	mu      sync.Mutex
	entries map[key]entry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[key]entry)}
}

// Grant records a permit for (sessionID, userID) valid for ttl. A second
// grant for the same pair simply refreshes the expiry — join is idempotent
// per spec §8, and a re-join before the websocket attaches should not
// require the client to discover a new TTL contract.
func (r *Registry) Grant(sessionID, userID string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{sessionID, userID}] = entry{expiresAt: time.Now().Add(ttl)}
}

// Consume atomically removes and reports whether a live (non-expired)
// permit existed for (sessionID, userID).
func (r *Registry) Consume(sessionID, userID string) bool {
	k := key{sessionID, userID}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[k]
	if !ok {
		return false
	}
	delete(r.entries, k)
	return time.Now().Before(e.expiresAt)
}

// Sweep drops every expired permit. Permits also expire "silently" on
// Consume (an expired-but-present entry reports false and is removed), so
// Sweep exists only to bound memory for permits that are granted and never
// attempted — it is not required for correctness.
func (r *Registry) Sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, k)
		}
	}
}
