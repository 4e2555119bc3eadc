// Package clock implements the Clock & Scheduler component (spec §4.A): a
// monotonic millisecond time source and a one-shot timer keyed by
// (sessionID, roundIndex) with cancel/reschedule semantics.
package clock

import (
	"sync"
	"time"
)

// Special round indices, per spec §4.A.
const (
	RoundLobbyCountdown = -1
	RoundWatchdog       = -2
)

// Now returns monotonic milliseconds suitable for comparing durations
// within a single process run. It is not a wall-clock timestamp.
func Now() int64 {
	return time.Since(processStart).Milliseconds()
}

// processStart anchors Now; time.Since reads its monotonic clock reading.
var processStart = time.Now()

// OnElapsed is invoked exactly once when a scheduled timer fires, unless
// cancelled first. It never runs while the caller holds its own lock —
// callers must re-acquire whatever lock they need inside the callback.
type OnElapsed func(sessionID string, roundIndex int)

// Handle cancels a single scheduled timer. Cancel after fire is a no-op.
type Handle struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

// Cancel prevents a pending fire. Safe to call multiple times and safe to
// call after the timer has already fired (no-op in that case).
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *Handle) markFired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return false
	}
	h.fired = true
	return true
}

// Scheduler arms and cancels per-session timers. Rescheduling for the same
// session cancels any prior pending fire for that session — the key is the
// session id alone, not (sessionID, roundIndex): a session only ever has
// one live deadline (a round deadline, the lobby countdown, or the
// inactivity watchdog) at a time, matching "exactly one round running"
// and "the countdown timer replaces the watchdog" semantics used by the
// coordinator.
type Scheduler struct {
	mu      sync.Mutex
	handles map[string]*Handle
	onFire  OnElapsed
}

// NewScheduler builds a Scheduler that invokes onFire for every timer that
// elapses without being cancelled first.
func NewScheduler(onFire OnElapsed) *Scheduler {
	return &Scheduler{
		handles: make(map[string]*Handle),
		onFire:  onFire,
	}
}

// Schedule arms a timer for sessionID/roundIndex to fire after delay,
// cancelling any previously pending timer for sessionID.
func (s *Scheduler) Schedule(sessionID string, roundIndex int, delay time.Duration) *Handle {
	s.mu.Lock()
	if prev, ok := s.handles[sessionID]; ok {
		prev.Cancel()
	}
	h := &Handle{}
	s.handles[sessionID] = h
	s.mu.Unlock()

	h.timer = time.AfterFunc(delay, func() {
		if !h.markFired() {
			return
		}
		s.mu.Lock()
		if s.handles[sessionID] == h {
			delete(s.handles, sessionID)
		}
		s.mu.Unlock()
		s.onFire(sessionID, roundIndex)
	})
	return h
}

// Cancel cancels the pending timer for sessionID, if any.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	h, ok := s.handles[sessionID]
	if ok {
		delete(s.handles, sessionID)
	}
	s.mu.Unlock()
	if ok {
		h.Cancel()
	}
}
