package activity

import (
	"math/rand"
	"sort"
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// Trivia implements the N-round multiple-choice quiz (spec §4.F.2).
type Trivia struct {
	bank       TriviaBank
	rounds     int
	timeLimit  time.Duration
	difficulty string
}

// NewTrivia builds a Trivia machine against bank from the process-wide
// trivia defaults.
func NewTrivia(bank TriviaBank, d config.TriviaDefaults) *Trivia {
	return &Trivia{
		bank:       bank,
		rounds:     d.Rounds,
		timeLimit:  d.TimeLimit,
		difficulty: "mixed",
	}
}

func (t *Trivia) Kind() session.Kind { return session.KindTrivia }

// configFor returns this session's effective tuning: the per-session
// override stashed on sess.Config at creation time if present, else this
// Machine's own process-wide defaults.
func (t *Trivia) configFor(sess *session.Session) config.TriviaDefaults {
	if d, ok := sess.Config.(config.TriviaDefaults); ok {
		return d
	}
	return config.TriviaDefaults{Rounds: t.rounds, TimeLimit: t.timeLimit}
}

func (t *Trivia) Start(sess *session.Session, now time.Time) Result {
	cfg := t.configFor(sess)
	questions, err := t.bank.Pick(t.difficulty, cfg.Rounds, nil)
	if err != nil || len(questions) == 0 {
		// No content available: end the session rather than hang in
		// running with no round (spec doesn't define this edge case;
		// treated as a draw, which the coordinator finalizes and records
		// like any other session end).
		return Result{SessionEnded: true, Outcome: &session.Outcome{Draw: true, Reason: "no_questions_available"}}
	}
	rounds := make([]*session.Round, 0, len(questions))
	for i, q := range questions {
		rounds = append(rounds, &session.Round{
			Index:       i,
			State:       session.RoundQueued,
			Payload:     &session.TriviaPayload{Question: q, TimeLimit: cfg.TimeLimit},
			Submissions: make(map[string]any),
		})
	}
	sess.Rounds = rounds
	return t.startRound(sess, 0, now)
}

func (t *Trivia) startRound(sess *session.Session, idx int, now time.Time) Result {
	cfg := t.configFor(sess)
	round := sess.Rounds[idx]
	round.State = session.RoundRunning
	round.StartedAt = now
	round.Deadline = now.Add(cfg.TimeLimit)
	sess.CurrentRound = idx

	payload := round.Payload.(*session.TriviaPayload)
	return Result{
		Events: []wire.OutboundFrame{
			wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
				SessionID:  sess.ID,
				RoundIndex: idx,
				Payload:    map[string]any{"options": payload.Question.Options, "timeLimitMs": cfg.TimeLimit.Milliseconds()},
				DeadlineMs: round.Deadline.UnixMilli(),
			}),
		},
		ArmTimer: &TimerArm{RoundIndex: idx, Delay: cfg.TimeLimit},
	}
}

func (t *Trivia) Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return Result{}, errInvalidTransition
	}
	if _, already := round.Submissions[userID]; already {
		return Result{}, nil
	}
	if payload.ChoiceIndex == nil {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	data := round.Payload.(*session.TriviaPayload)
	correct := *payload.ChoiceIndex == data.Question.CorrectOption

	sub := session.TriviaSubmission{
		ChoiceIndex:  *payload.ChoiceIndex,
		ResponseTime: now.Sub(round.StartedAt),
		Correct:      correct,
	}
	round.Submissions[userID] = sub

	if correct {
		if p := sess.Participant(userID); p != nil {
			p.Score++
		}
	}

	events := []wire.OutboundFrame{
		wire.Event(wire.TypeScoreUpdated, wire.ScoreUpdatedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	if len(round.Submissions) >= len(sess.Participants) {
		res := t.endRound(sess, round, now)
		res.Events = append(events, res.Events...)
		return res, nil
	}
	return Result{Events: events}, nil
}

func (t *Trivia) endRound(sess *session.Session, round *session.Round, now time.Time) Result {
	round.State = session.RoundDone
	events := []wire.OutboundFrame{
		wire.Event(wire.TypeRoundEnded, wire.RoundEndedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	next := round.Index + 1
	if next < len(sess.Rounds) {
		res := t.startRound(sess, next, now)
		return Result{
			RoundEnded: true,
			Events:     append(events, res.Events...),
			ArmTimer:   res.ArmTimer,
		}
	}

	outcome := t.finalOutcome(sess)
	return Result{
		RoundEnded:   true,
		SessionEnded: true,
		Outcome:      outcome,
		CancelTimer:  true,
		Events:       events,
	}
}

// finalOutcome applies spec §4.F.2's tie-break: higher score wins; equal
// score falls back to lower median response time across answered rounds;
// still equal is a draw.
func (t *Trivia) finalOutcome(sess *session.Session) *session.Outcome {
	if len(sess.Participants) != 2 {
		return &session.Outcome{Draw: true}
	}
	a, b := sess.Participants[0], sess.Participants[1]
	if a.Score != b.Score {
		if a.Score > b.Score {
			return &session.Outcome{WinnerUser: a.UserID, LoserUser: b.UserID}
		}
		return &session.Outcome{WinnerUser: b.UserID, LoserUser: a.UserID}
	}

	medA := medianResponseTime(sess, a.UserID)
	medB := medianResponseTime(sess, b.UserID)
	if medA == medB {
		return &session.Outcome{Draw: true}
	}
	if medA < medB {
		return &session.Outcome{WinnerUser: a.UserID, LoserUser: b.UserID, Reason: "faster_median_response"}
	}
	return &session.Outcome{WinnerUser: b.UserID, LoserUser: a.UserID, Reason: "faster_median_response"}
}

func medianResponseTime(sess *session.Session, userID string) time.Duration {
	var times []time.Duration
	for _, r := range sess.Rounds {
		sub, ok := r.Submissions[userID]
		if !ok {
			continue
		}
		t := sub.(session.TriviaSubmission)
		times = append(times, t.ResponseTime)
	}
	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	mid := len(times) / 2
	if len(times)%2 == 1 {
		return times[mid]
	}
	return (times[mid-1] + times[mid]) / 2
}

func (t *Trivia) Timer(sess *session.Session, roundIndex int, now time.Time) Result {
	round := sess.CurrentRoundPtr()
	if round == nil || round.Index != roundIndex || round.State != session.RoundRunning {
		return Result{}
	}
	return t.endRound(sess, round, now)
}

func (t *Trivia) Leave(sess *session.Session, userID string, now time.Time) Result {
	return DefaultLeave(sess, userID, 0)
}

// shuffleOptions returns a shuffled copy of opts. Nothing calls it:
// internal/triviabank serves each question's options in file order, which
// keeps CorrectOption pointing at the right index.
func shuffleOptions(opts []string) []string {
	out := make([]string, len(opts))
	copy(out, opts)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
