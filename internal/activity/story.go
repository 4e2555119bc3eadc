package activity

import (
	"math/rand"
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// storyRoundData is the single collaborative-story round: the writing
// phase's turn order and paragraph cap, then the voting phase's tallies.
// Story Builder has exactly one Round for its whole lifetime (spec
// §4.F.5); the writing/voting split is tracked via sess.Phase rather than
// a second round.
type storyRoundData struct {
	Prompt       string
	ParagraphCap int
	TurnOrder    []string
	TurnIndex    int
	Paragraphs   []session.Paragraph
}

// Story implements the turn-based collaborative writing + voting activity
// (spec §4.F.5).
type Story struct {
	paragraphCap    int
	writeCountdown  time.Duration
	votingCountdown time.Duration
	prompts         map[session.StoryRole][]string
}

// NewStory builds a Story machine from the process-wide story defaults.
// The write and voting phases share the configured countdown.
func NewStory(d config.StoryDefaults) *Story {
	return &Story{
		paragraphCap:    d.ParagraphCap,
		writeCountdown:  d.Countdown,
		votingCountdown: d.Countdown,
		prompts:         defaultStoryPrompts,
	}
}

func (s *Story) Kind() session.Kind { return session.KindStory }

// configFor returns this session's effective tuning: the per-session
// override stashed on sess.Config at creation time if present, else this
// Machine's own process-wide defaults.
func (s *Story) configFor(sess *session.Session) config.StoryDefaults {
	if d, ok := sess.Config.(config.StoryDefaults); ok {
		return d
	}
	return config.StoryDefaults{ParagraphCap: s.paragraphCap, Countdown: s.writeCountdown}
}

func (s *Story) Start(sess *session.Session, now time.Time) Result {
	cfg := s.configFor(sess)
	order := make([]string, len(sess.Participants))
	for i, p := range sess.Participants {
		order[i] = p.UserID
	}
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	prompt := s.pickPrompt(sess)
	round := &session.Round{
		Index: 0,
		State: session.RoundRunning,
		Payload: &storyRoundData{
			Prompt:       prompt,
			ParagraphCap: cfg.ParagraphCap,
			TurnOrder:    order,
		},
		StartedAt:   now,
		Submissions: make(map[string]any),
	}
	sess.Rounds = []*session.Round{round}
	sess.CurrentRound = 0
	sess.Phase = session.PhaseRunning

	return Result{
		Events: []wire.OutboundFrame{
			wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
				SessionID:  sess.ID,
				RoundIndex: 0,
				Payload:    map[string]any{"prompt": prompt, "turn": order[0]},
			}),
		},
	}
}

func (s *Story) pickPrompt(sess *session.Session) string {
	var pool []string
	for _, p := range sess.Participants {
		pool = append(pool, s.prompts[session.StoryRole(p.Role)]...)
	}
	if len(pool) == 0 {
		pool = s.prompts[session.StoryRoleBoy]
	}
	return pool[rand.Intn(len(pool))]
}

func (s *Story) Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return Result{}, errInvalidTransition
	}
	data := round.Payload.(*storyRoundData)

	switch sess.Phase {
	case session.PhaseRunning:
		return s.submitParagraph(sess, round, data, userID, payload, now)
	case session.PhaseVoting:
		return s.submitVote(sess, round, data, userID, payload, now)
	default:
		return Result{}, errInvalidTransition
	}
}

func (s *Story) submitParagraph(sess *session.Session, round *session.Round, data *storyRoundData, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	if data.TurnOrder[data.TurnIndex%len(data.TurnOrder)] != userID {
		return Result{}, apierr.New(apierr.CodeInvalidRequest)
	}
	if payload.Paragraph == nil || *payload.Paragraph == "" {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}

	data.Paragraphs = append(data.Paragraphs, session.Paragraph{
		AuthorUserID: userID,
		Text:         *payload.Paragraph,
		Votes:        make(map[string]int),
	})
	data.TurnIndex++

	events := []wire.OutboundFrame{
		wire.Event(wire.TypeScoreUpdated, wire.ScoreUpdatedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	if data.TurnIndex >= len(data.TurnOrder)*data.ParagraphCap {
		sess.Phase = session.PhaseVoting
		votingCountdown := s.configFor(sess).Countdown
		events = append(events, wire.Event(wire.TypeCountdown, wire.CountdownPayload{
			SessionID:  sess.ID,
			Phase:      string(session.PhaseVoting),
			DurationMs: votingCountdown.Milliseconds(),
		}))
		return Result{Events: events, ArmTimer: &TimerArm{RoundIndex: round.Index, Delay: votingCountdown}}, nil
	}

	next := data.TurnOrder[data.TurnIndex%len(data.TurnOrder)]
	events = append(events, wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
		SessionID:  sess.ID,
		RoundIndex: round.Index,
		Payload:    map[string]any{"turn": next},
	}))
	return Result{Events: events}, nil
}

func (s *Story) submitVote(sess *session.Session, round *session.Round, data *storyRoundData, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	if payload.VoteParagraph == nil || payload.VoteScore == nil {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	idx := *payload.VoteParagraph
	if idx < 0 || idx >= len(data.Paragraphs) {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	para := &data.Paragraphs[idx]
	if para.AuthorUserID == userID {
		return Result{}, apierr.New(apierr.CodeInvalidRequest)
	}
	if _, already := para.Votes[userID]; already {
		return Result{}, nil
	}
	score := *payload.VoteScore
	if score < 0 || score > 10 {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	para.Votes[userID] = score
	para.VotesTotal += score

	if s.votingComplete(sess, data) {
		return s.endStory(sess, round, now), nil
	}
	return Result{}, nil
}

// votingComplete reports whether every participant has voted on every
// paragraph not authored by them.
func (s *Story) votingComplete(sess *session.Session, data *storyRoundData) bool {
	for _, p := range sess.Participants {
		for _, para := range data.Paragraphs {
			if para.AuthorUserID == p.UserID {
				continue
			}
			if _, voted := para.Votes[p.UserID]; !voted {
				return false
			}
		}
	}
	return true
}

func (s *Story) endStory(sess *session.Session, round *session.Round, now time.Time) Result {
	round.State = session.RoundDone
	data := round.Payload.(*storyRoundData)

	totals := make(map[string]int)
	for _, para := range data.Paragraphs {
		totals[para.AuthorUserID] += para.VotesTotal
	}
	for _, p := range sess.Participants {
		p.Score = totals[p.UserID]
	}

	outcome := s.finalOutcome(sess)
	events := []wire.OutboundFrame{
		wire.Event(wire.TypeRoundEnded, wire.RoundEndedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}
	return Result{
		RoundEnded:   true,
		SessionEnded: true,
		Outcome:      outcome,
		CancelTimer:  true,
		Events:       events,
	}
}

func (s *Story) finalOutcome(sess *session.Session) *session.Outcome {
	if len(sess.Participants) != 2 {
		return &session.Outcome{Draw: true}
	}
	a, b := sess.Participants[0], sess.Participants[1]
	if a.Score == b.Score {
		return &session.Outcome{Draw: true}
	}
	if a.Score > b.Score {
		return &session.Outcome{WinnerUser: a.UserID, LoserUser: b.UserID}
	}
	return &session.Outcome{WinnerUser: b.UserID, LoserUser: a.UserID}
}

func (s *Story) Timer(sess *session.Session, roundIndex int, now time.Time) Result {
	round := sess.CurrentRoundPtr()
	if round == nil || round.Index != roundIndex {
		return Result{}
	}
	switch sess.Phase {
	case session.PhaseRunning:
		// Writing phase ran out the (optional) per-turn countdown without
		// a submission: skip the stalled author's turn rather than
		// stalling the whole session.
		data := round.Payload.(*storyRoundData)
		data.TurnIndex++
		if data.TurnIndex >= len(data.TurnOrder)*data.ParagraphCap {
			sess.Phase = session.PhaseVoting
			return Result{ArmTimer: &TimerArm{RoundIndex: roundIndex, Delay: s.configFor(sess).Countdown}}
		}
		next := data.TurnOrder[data.TurnIndex%len(data.TurnOrder)]
		return Result{Events: []wire.OutboundFrame{
			wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
				SessionID:  sess.ID,
				RoundIndex: roundIndex,
				Payload:    map[string]any{"turn": next},
			}),
		}}
	case session.PhaseVoting:
		return s.endStory(sess, round, now)
	default:
		return Result{}
	}
}

func (s *Story) Leave(sess *session.Session, userID string, now time.Time) Result {
	return DefaultLeave(sess, userID, 0)
}

var defaultStoryPrompts = map[session.StoryRole][]string{
	session.StoryRoleBoy: {
		"He found the key under the doormat, but the lock it fit was nowhere in the house.",
		"The last bus had already gone, and the city felt different after midnight.",
	},
	session.StoryRoleGirl: {
		"She kept the letter in her coat pocket for three years before she read it.",
		"The garden behind the old library wasn't supposed to exist, but there it was.",
	},
}
