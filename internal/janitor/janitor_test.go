package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crab.casa/activities/internal/log"
)

type fakeSweeper struct {
	calls int32
}

func (f *fakeSweeper) Sweep(now time.Time) int {
	atomic.AddInt32(&f.calls, 1)
	return 0
}

func TestJanitor_RunSweepsUntilCancelled(t *testing.T) {
	f := &fakeSweeper{}
	j := New(f, 10*time.Millisecond, log.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.calls) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
