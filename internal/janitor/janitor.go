// Package janitor runs the periodic retention sweep (spec §8: ended
// sessions are dropped after a retention window, abandoned pending
// sessions after a longer one). It is a thin ticker loop around
// coordinator.Coordinator.Sweep that runs until ctx is cancelled.
package janitor

import (
	"context"
	"time"

	"crab.casa/activities/internal/log"
)

// Sweeper is the narrow slice of *coordinator.Coordinator the janitor
// depends on.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Janitor ticks every interval and calls Sweeper.Sweep once per tick.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *log.Logger
}

// New builds a Janitor that sweeps every interval.
func New(sweeper Sweeper, interval time.Duration, logger *log.Logger) *Janitor {
	return &Janitor{sweeper: sweeper, interval: interval, logger: logger}
}

// Run blocks ticking until ctx is cancelled. Intended to run on its own
// goroutine, started from cmd/activities-server/main.go alongside the
// HTTP server.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := j.sweeper.Sweep(now)
			if removed > 0 {
				j.logger.Fields(map[string]any{"removed": removed}).Info("retention sweep completed")
			}
		}
	}
}
