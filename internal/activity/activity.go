// Package activity implements the Activity State Machines component (spec
// §4.F): the five game variants sharing the common lobby -> countdown ->
// running (rounds) -> ended lifecycle, here as a sum type dispatched by
// session.Kind over a shared header (session.Session) with a kind-specific
// body (Round.Payload / submissions), replacing the source's runtime
// duck-typed records per spec.md §9's design notes.
package activity

import (
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// TimerArm describes a (re)schedule request a Machine hands back to the
// coordinator, which owns the actual clock.Scheduler.
type TimerArm struct {
	RoundIndex int
	Delay      time.Duration
}

// Result is what a Machine call produces: the events to publish (in
// order), and optionally a round/session end and a new timer to arm. A
// zero Result is a legal "nothing happened" (e.g. a duplicate submission).
type Result struct {
	Events       []wire.OutboundFrame
	RoundEnded   bool
	SessionEnded bool
	Outcome      *session.Outcome
	ArmTimer     *TimerArm
	CancelTimer  bool
}

// Machine is the per-kind behavior a session.Kind dispatches to once it
// has left the lobby. Lobby/countdown/ready/leave-while-lobby handling is
// common across kinds and lives in internal/coordinator; Machine only
// covers what happens once a round is live.
type Machine interface {
	Kind() session.Kind

	// Start builds the session's round(s) and returns the events/timer
	// for entering `running`, called once right after the countdown
	// timer fires.
	Start(sess *session.Session, now time.Time) Result

	// Submit handles a "submit" command for userID, already verified to
	// be a participant with phase=running and past the rate limiter.
	Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error)

	// Timer handles a scheduler callback for roundIndex. No-op (zero
	// Result) if the round no longer applies.
	Timer(sess *session.Session, roundIndex int, now time.Time) Result

	// Leave handles a participant leaving while running, covering the
	// "exactly one other participant remaining" forfeit rule and the
	// "reduces to zero" no-winner rule. Machines needing kind-specific
	// forfeit scoring (e.g. RPS's spread payout) override the default
	// in DefaultLeave by implementing their own.
	Leave(sess *session.Session, userID string, now time.Time) Result
}

// Registry maps each Kind to its Machine, the dispatch table the
// coordinator indexes into.
type Registry map[session.Kind]Machine

// NewRegistry builds the standard five-kind registry, each Machine seeded
// with its slice of the process-wide activity defaults (spec §7 config).
func NewRegistry(tb TriviaBank, cfg config.ActivityDefaults) Registry {
	return Registry{
		session.KindTypingDuel: NewTypingDuel(cfg.Typing),
		session.KindTrivia:     NewTrivia(tb, cfg.Trivia),
		session.KindRPS:        NewRPS(cfg.RPS),
		session.KindTicTacToe:  NewTicTacToe(cfg.TicTacToe),
		session.KindStory:      NewStory(cfg.Story),
	}
}

// TriviaBank is the narrow external question-bank collaborator (spec §1:
// "the question/text bank content" is out of scope); internal/triviabank
// provides the default implementation.
type TriviaBank interface {
	// Pick returns count questions from difficulty, chosen uniformly at
	// random without replacement across the session (excludeIDs already
	// picked this session).
	Pick(difficulty string, count int, excludeIDs []string) ([]session.Question, error)
}

// DefaultLeave implements the common forfeit/zero-participant rule from
// spec §4.F's "Common failure semantics": exactly one other participant
// remaining -> that participant wins with reason "opponent_left"; reduces
// to zero -> session ends without a winner. scoreBonus is added to the
// remaining winner's score (kind-specific forfeit bonus, 0 if none).
func DefaultLeave(sess *session.Session, userID string, scoreBonus int) Result {
	left := 0
	var remaining *session.Participant
	for _, p := range sess.Participants {
		if p.UserID == userID {
			continue
		}
		if p.Joined {
			left++
			remaining = p
		}
	}

	if left == 0 {
		return Result{
			SessionEnded: true,
			Outcome:      &session.Outcome{Draw: true},
			CancelTimer:  true,
		}
	}

	if left == 1 {
		remaining.Score += scoreBonus
		return Result{
			SessionEnded: true,
			Outcome: &session.Outcome{
				WinnerUser: remaining.UserID,
				LoserUser:  userID,
				Reason:     "opponent_left",
			},
			CancelTimer: true,
		}
	}

	// More than one participant remains (kind has >2 players is not part
	// of this spec, but stay defensive rather than silently misbehave).
	return Result{}
}

func scoresOf(sess *session.Session) map[string]int {
	scores := make(map[string]int, len(sess.Participants))
	for _, p := range sess.Participants {
		scores[p.UserID] = p.Score
	}
	return scores
}

// errInvalidTransition is returned by Submit when the session/round state
// doesn't admit a submission; the coordinator maps it straight onto an
// error frame for the submitter (spec §4.F "Common failure semantics").
var errInvalidTransition = apierr.New(apierr.CodeSessionNotRunning)
