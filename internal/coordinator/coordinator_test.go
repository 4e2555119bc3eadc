package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crab.casa/activities/internal/activity"
	"crab.casa/activities/internal/clock"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/log"
	"crab.casa/activities/internal/permit"
	"crab.casa/activities/internal/progression"
	"crab.casa/activities/internal/ratelimit"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/sockethub"
	"crab.casa/activities/internal/store"
	"crab.casa/activities/internal/wire"
)

type stubTriviaBank struct{}

func (stubTriviaBank) Pick(difficulty string, count int, excludeIDs []string) ([]session.Question, error) {
	qs := make([]session.Question, count)
	for i := range qs {
		qs[i] = session.Question{ID: "q", Options: []string{"a", "b"}, CorrectOption: 0}
	}
	return qs, nil
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.Load()
	c := New(store.New(), ratelimit.New(), permit.New(), sockethub.New(log.Default()), activity.NewRegistry(stubTriviaBank{}, cfg.Activity), cfg, log.Default(), progression.NewMem())
	sched := clock.NewScheduler(c.TimerFired)
	c.AttachScheduler(sched)
	return c
}

func TestCoordinator_CreateRejectsBadParticipants(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.Create("alice", "typing_duel", []string{"alice", "alice"}, nil)
	assert.Error(t, err)
}

func TestCoordinator_CreateRejectsUnsupportedKind(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.Create("alice", "chess", []string{"alice", "bob"}, nil)
	assert.Error(t, err)
}

func TestCoordinator_JoinGrantsPermit(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	ttl, err := c.Join(sess.ID, "alice")
	require.NoError(t, err)
	assert.True(t, ttl > 0)
	assert.True(t, c.ConsumeJoinPermit(sess.ID, "alice"))
	assert.False(t, c.ConsumeJoinPermit(sess.ID, "alice")) // single use
}

func TestCoordinator_ReadyBothEntersCountdownThenRunning(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")
	_, _ = c.Join(sess.ID, "bob")

	require.NoError(t, c.Ready(sess.ID, "alice", boolp(true)))
	require.NoError(t, c.Ready(sess.ID, "bob", boolp(true)))

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCountdown, got.Phase)

	c.TimerFired(sess.ID, clock.RoundLobbyCountdown)
	got, err = c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, got.Status)
}

func TestCoordinator_UnreadyDuringCountdownCancels(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")
	_, _ = c.Join(sess.ID, "bob")
	require.NoError(t, c.Ready(sess.ID, "alice", boolp(true)))
	require.NoError(t, c.Ready(sess.ID, "bob", boolp(true)))

	require.NoError(t, c.Ready(sess.ID, "bob", boolp(false)))

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseLobby, got.Phase)
}

func TestCoordinator_SubmitRejectedBeforeRunning(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	err = c.Submit(sess.ID, "alice", wire.SubmitPayload{Move: "rock"})
	assert.Error(t, err)
}

func TestCoordinator_LeaveWhileRunningForfeits(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")
	_, _ = c.Join(sess.ID, "bob")
	require.NoError(t, c.Ready(sess.ID, "alice", boolp(true)))
	require.NoError(t, c.Ready(sess.ID, "bob", boolp(true)))
	c.TimerFired(sess.ID, clock.RoundLobbyCountdown)

	require.NoError(t, c.Leave(sess.ID, "bob"))

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.Equal(t, "alice", got.Outcome.WinnerUser)
	assert.Equal(t, 300, got.Participant("alice").Score)
	assert.Equal(t, 0, got.Participant("bob").Score)
	assert.True(t, got.StatsRecorded)
}

func TestCoordinator_StoryRequiresRolesBeforeCountdown(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "story", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")
	_, _ = c.Join(sess.ID, "bob")
	require.NoError(t, c.Ready(sess.ID, "alice", boolp(true)))
	require.NoError(t, c.Ready(sess.ID, "bob", boolp(true)))

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseLobby, got.Phase, "countdown must wait on both roles")

	require.NoError(t, c.SetRole(sess.ID, "alice", "boy"))
	got, err = c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseLobby, got.Phase, "still missing bob's role")

	require.NoError(t, c.SetRole(sess.ID, "bob", "girl"))
	got, err = c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCountdown, got.Phase)
}

func TestCoordinator_SetRoleRejectsUnknownValue(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "story", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")

	err = c.SetRole(sess.ID, "alice", "robot")
	assert.Error(t, err)
}

func TestCoordinator_WatchdogEndsStalledSessionAsDraw(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, _ = c.Join(sess.ID, "alice")
	_, _ = c.Join(sess.ID, "bob")
	require.NoError(t, c.Ready(sess.ID, "alice", boolp(true)))
	require.NoError(t, c.Ready(sess.ID, "bob", boolp(true)))
	c.TimerFired(sess.ID, clock.RoundLobbyCountdown)

	c.TimerFired(sess.ID, clock.RoundWatchdog)

	got, err := c.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.True(t, got.Outcome.Draw)
}

func TestCoordinator_PingUpdatesSkewAndRepliesPong(t *testing.T) {
	c := newTestCoordinator(t)
	sess, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	pong, err := c.Ping(sess.ID, "alice", time.Now().Add(-50*time.Millisecond).UnixMilli())
	require.NoError(t, err)
	assert.True(t, pong.ServerTimeMs > 0)
}

func TestCoordinator_PendingCapRejectsFourthSession(t *testing.T) {
	c := newTestCoordinator(t)
	for i := 0; i < 3; i++ {
		_, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
		require.NoError(t, err)
	}
	_, err := c.Create("alice", "rps", []string{"alice", "bob"}, nil)
	assert.Error(t, err)
}

func boolp(b bool) *bool { return &b }
