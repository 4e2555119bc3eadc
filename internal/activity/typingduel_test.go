package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

var testTypingDefaults = config.TypingDefaults{MinPromptLen: 70, MaxPromptLen: 120, TimeLimit: 40 * time.Second}

func newTwoPlayerSession(kind session.Kind) *session.Session {
	return &session.Session{
		ID:   "sess-1",
		Kind: kind,
		Participants: []*session.Participant{
			{UserID: "alice", Joined: true, Ready: true},
			{UserID: "bob", Joined: true, Ready: true},
		},
		CurrentRound: -1,
	}
}

func TestTypingDuel_StartArmsTimerAndPrompt(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()

	res := m.Start(sess, now)

	require.NotNil(t, res.ArmTimer)
	assert.Equal(t, 0, res.ArmTimer.RoundIndex)
	assert.Len(t, sess.Rounds, 1)
	assert.Equal(t, session.RoundRunning, sess.Rounds[0].State)
}

func TestTypingDuel_PerfectSubmissionEndsSessionImmediately(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	data := sess.Rounds[0].Payload.(*typingRoundData)
	res, err := m.Submit(sess, "alice", wire.SubmitPayload{Text: data.Prompt}, now.Add(2*time.Second))

	require.NoError(t, err)
	assert.True(t, res.SessionEnded)
	assert.Equal(t, "alice", res.Outcome.WinnerUser)
	assert.True(t, sess.Participant("alice").Score > 0)
}

func TestTypingDuel_WrongSubmissionPenalizes(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	res, err := m.Submit(sess, "alice", wire.SubmitPayload{Text: "definitely wrong text"}, now.Add(2*time.Second))

	require.NoError(t, err)
	assert.False(t, res.SessionEnded)
	assert.Equal(t, -25, sess.Participant("alice").Score)
}

func TestTypingDuel_TimerEndsRoundOnDeadline(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	res := m.Timer(sess, 0, now.Add(41*time.Second))

	assert.True(t, res.SessionEnded)
	assert.True(t, res.CancelTimer)
}

func TestTypingDuel_KeystrokeRejectsBeforeRound(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)

	_, err := m.AppendKeystroke(sess, "alice", 0, 5, false, time.Now())

	assert.Error(t, err)
}

func TestTypingDuel_KeystrokeFlagsImplausibleRate(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	clientBase := now.UnixMilli()
	_, err := m.AppendKeystroke(sess, "alice", clientBase, 5, false, now)
	require.NoError(t, err)

	incidents, err := m.AppendKeystroke(sess, "alice", clientBase+10, 100, false, now.Add(10*time.Millisecond))
	require.NoError(t, err)
	assert.Contains(t, incidents, "implausible_rate")
}

func TestTypingDuel_KeystrokeFlagsPaste(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	incidents, err := m.AppendKeystroke(sess, "alice", now.UnixMilli(), 50, true, now)
	require.NoError(t, err)
	assert.Contains(t, incidents, "paste")
}

func TestTypingDuel_LeaveForfeitsToRemaining(t *testing.T) {
	m := NewTypingDuel(testTypingDefaults)
	sess := newTwoPlayerSession(session.KindTypingDuel)
	now := time.Now()
	m.Start(sess, now)

	res := m.Leave(sess, "alice", now)

	assert.True(t, res.SessionEnded)
	assert.Equal(t, "bob", res.Outcome.WinnerUser)
}
