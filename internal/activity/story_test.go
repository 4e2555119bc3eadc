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

var testStoryDefaults = config.StoryDefaults{ParagraphCap: 3, Countdown: 10 * time.Second}

func newStorySession() *session.Session {
	sess := newTwoPlayerSession(session.KindStory)
	sess.Participants[0].Role = string(session.StoryRoleBoy)
	sess.Participants[1].Role = string(session.StoryRoleGirl)
	return sess
}

func TestStory_StartShufflesTurnOrder(t *testing.T) {
	m := NewStory(testStoryDefaults)
	sess := newStorySession()
	now := time.Now()

	m.Start(sess, now)

	data := sess.Rounds[0].Payload.(*storyRoundData)
	assert.Len(t, data.TurnOrder, 2)
	assert.Equal(t, session.PhaseRunning, sess.Phase)
}

func TestStory_RejectsOutOfTurnParagraph(t *testing.T) {
	m := NewStory(testStoryDefaults)
	sess := newStorySession()
	now := time.Now()
	m.Start(sess, now)

	data := sess.Rounds[0].Payload.(*storyRoundData)
	wrongUser := data.TurnOrder[1]
	text := "out of turn"

	_, err := m.Submit(sess, wrongUser, wire.SubmitPayload{Paragraph: &text}, now)
	assert.Error(t, err)
}

func TestStory_AdvancesToVotingAfterAllTurns(t *testing.T) {
	m := NewStory(testStoryDefaults)
	sess := newStorySession()
	now := time.Now()
	m.Start(sess, now)
	data := sess.Rounds[0].Payload.(*storyRoundData)

	total := len(data.TurnOrder) * m.paragraphCap
	for i := 0; i < total; i++ {
		turn := data.TurnOrder[data.TurnIndex%len(data.TurnOrder)]
		text := "paragraph text"
		res, err := m.Submit(sess, turn, wire.SubmitPayload{Paragraph: &text}, now)
		require.NoError(t, err)
		if i == total-1 {
			assert.Equal(t, session.PhaseVoting, sess.Phase)
			require.NotNil(t, res.ArmTimer)
		}
	}
}

func TestStory_RejectsSelfVote(t *testing.T) {
	m := NewStory(testStoryDefaults)
	sess := newStorySession()
	now := time.Now()
	m.Start(sess, now)
	data := sess.Rounds[0].Payload.(*storyRoundData)

	total := len(data.TurnOrder) * m.paragraphCap
	for i := 0; i < total; i++ {
		turn := data.TurnOrder[data.TurnIndex%len(data.TurnOrder)]
		text := "paragraph text"
		_, err := m.Submit(sess, turn, wire.SubmitPayload{Paragraph: &text}, now)
		require.NoError(t, err)
	}

	author := data.Paragraphs[0].AuthorUserID
	_, err := m.Submit(sess, author, wire.SubmitPayload{VoteParagraph: intp(0), VoteScore: intp(5)}, now)
	assert.Error(t, err)
}

func TestStory_VotingCompleteEndsSessionWithTally(t *testing.T) {
	m := NewStory(testStoryDefaults)
	sess := newStorySession()
	now := time.Now()
	m.Start(sess, now)
	data := sess.Rounds[0].Payload.(*storyRoundData)

	total := len(data.TurnOrder) * m.paragraphCap
	for i := 0; i < total; i++ {
		turn := data.TurnOrder[data.TurnIndex%len(data.TurnOrder)]
		text := "paragraph text"
		_, err := m.Submit(sess, turn, wire.SubmitPayload{Paragraph: &text}, now)
		require.NoError(t, err)
	}

	var lastRes Result
	var err error
	for idx, para := range data.Paragraphs {
		for _, p := range sess.Participants {
			if p.UserID == para.AuthorUserID {
				continue
			}
			lastRes, err = m.Submit(sess, p.UserID, wire.SubmitPayload{VoteParagraph: intp(idx), VoteScore: intp(7)}, now)
			require.NoError(t, err)
		}
	}

	assert.True(t, lastRes.SessionEnded)
}
