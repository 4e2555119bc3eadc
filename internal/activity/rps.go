package activity

import (
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// RPS implements best-of-N rock-paper-scissors with early stop (spec
// §4.F.3).
type RPS struct {
	winTarget     int
	interRoundGap time.Duration
	countdown     time.Duration
}

// NewRPS builds an RPS machine from the process-wide RPS defaults: first
// to winTarget round wins, or best-of-(2*winTarget-1) if neither side gets
// there first. Each round after the first starts as soon as the previous
// one resolves, with no pause in between; interRoundGap is the timer armed
// for that new round, and when it fires any missing move counts as a loss
// (see Timer).
func NewRPS(d config.RPSDefaults) *RPS {
	return &RPS{
		winTarget:     d.WinTarget,
		interRoundGap: d.RoundDelay,
		countdown:     d.Countdown,
	}
}

func (r *RPS) Kind() session.Kind { return session.KindRPS }

// configFor returns this session's effective tuning: the per-session
// override stashed on sess.Config at creation time if present, else this
// Machine's own process-wide defaults.
func (r *RPS) configFor(sess *session.Session) config.RPSDefaults {
	if d, ok := sess.Config.(config.RPSDefaults); ok {
		return d
	}
	return config.RPSDefaults{WinTarget: r.winTarget, RoundDelay: r.interRoundGap, Countdown: r.countdown}
}

func (r *RPS) Start(sess *session.Session, now time.Time) Result {
	sess.Rounds = nil
	sess.CurrentRound = -1
	return r.startRound(sess, 0, now)
}

func (r *RPS) startRound(sess *session.Session, idx int, now time.Time) Result {
	round := &session.Round{
		Index:       idx,
		State:       session.RoundRunning,
		Submissions: make(map[string]any),
		StartedAt:   now,
	}
	sess.Rounds = append(sess.Rounds, round)
	sess.CurrentRound = idx

	return Result{
		Events: []wire.OutboundFrame{
			wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
				SessionID:  sess.ID,
				RoundIndex: idx,
				Payload:    map[string]any{},
			}),
		},
	}
}

func (r *RPS) Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return Result{}, errInvalidTransition
	}
	if _, already := round.Submissions[userID]; already {
		return Result{}, nil
	}
	move := session.Move(payload.Move)
	switch move {
	case session.MoveRock, session.MovePaper, session.MoveScissors:
	default:
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	round.Submissions[userID] = session.RPSSubmission{Move: move}

	if len(round.Submissions) < len(sess.Participants) {
		return Result{}, nil
	}
	return r.resolveRound(sess, round, now), nil
}

func (r *RPS) resolveRound(sess *session.Session, round *session.Round, now time.Time) Result {
	round.State = session.RoundDone
	events := []wire.OutboundFrame{}

	if len(sess.Participants) == 2 {
		a, b := sess.Participants[0], sess.Participants[1]
		subA := round.Submissions[a.UserID].(session.RPSSubmission)
		subB := round.Submissions[b.UserID].(session.RPSSubmission)
		switch beats(subA.Move, subB.Move) {
		case 1:
			a.Score++
		case -1:
			b.Score++
		}
	}

	events = append(events, wire.Event(wire.TypeRoundEnded, wire.RoundEndedPayload{
		SessionID:  sess.ID,
		RoundIndex: round.Index,
		Scores:     scoresOf(sess),
	}))

	if done, outcome := r.matchComplete(sess, round.Index); done {
		return Result{
			RoundEnded:   true,
			SessionEnded: true,
			Outcome:      outcome,
			CancelTimer:  true,
			Events:       events,
		}
	}

	next := r.startRound(sess, round.Index+1, now)
	return Result{
		RoundEnded: true,
		Events:     append(events, next.Events...),
		ArmTimer:   &TimerArm{RoundIndex: round.Index + 1, Delay: r.configFor(sess).RoundDelay},
	}
}

// beats reports the round outcome for a vs b: 1 if a wins, -1 if b wins, 0
// tie, under the standard rock<paper<scissors<rock cycle. An empty move (no
// throw before the round timer fired) loses to any throw.
func beats(a, b session.Move) int {
	if a == b {
		return 0
	}
	if b == "" {
		return 1
	}
	wins := map[session.Move]session.Move{
		session.MoveRock:     session.MoveScissors,
		session.MovePaper:    session.MoveRock,
		session.MoveScissors: session.MovePaper,
	}
	if wins[a] == b {
		return 1
	}
	return -1
}

func (r *RPS) matchComplete(sess *session.Session, roundIndex int) (bool, *session.Outcome) {
	if len(sess.Participants) != 2 {
		return true, &session.Outcome{Draw: true}
	}
	cfg := r.configFor(sess)
	winTarget := cfg.WinTarget
	maxRounds := 2*winTarget - 1
	a, b := sess.Participants[0], sess.Participants[1]
	if a.Score >= winTarget || b.Score >= winTarget {
		return true, r.finalOutcome(sess, winTarget)
	}
	// roundIndex is 0-based, so maxRounds played once roundIndex reaches
	// maxRounds-1. Neither side hit winTarget: resolve by margin, or tie.
	if roundIndex >= maxRounds-1 {
		return true, r.finalOutcome(sess, winTarget)
	}
	return false, nil
}

// finalOutcome applies the spec's spread-based scoring: winner gets a
// score proportional to the round-win margin (300 for a 3-0 sweep, 250
// for 3-1, 200 for 3-2) and the loser gets 0 for every decisive win. A
// 2-2 finish (the round cap expired without either side reaching
// winTarget) is a tie and splits 150/150 instead.
func (r *RPS) finalOutcome(sess *session.Session, winTarget int) *session.Outcome {
	a, b := sess.Participants[0], sess.Participants[1]
	var winner, loser *session.Participant
	if a.Score > b.Score {
		winner, loser = a, b
	} else if b.Score > a.Score {
		winner, loser = b, a
	} else {
		a.Score, b.Score = 150, 150
		return &session.Outcome{Draw: true}
	}

	margin := winner.Score - loser.Score
	switch margin {
	case winTarget:
		winner.Score = 300
	case winTarget - 1:
		winner.Score = 250
	default:
		winner.Score = 200
	}
	loser.Score = 0

	return &session.Outcome{WinnerUser: winner.UserID, LoserUser: loser.UserID}
}

func (r *RPS) Timer(sess *session.Session, roundIndex int, now time.Time) Result {
	round := sess.CurrentRoundPtr()
	if round == nil {
		return Result{}
	}
	if round.State == session.RoundRunning && round.Index == roundIndex {
		// The interRoundGap timer armed when the previous round resolved
		// fired with a move still missing: treat the non-submitter as
		// having thrown nothing, resolving the round as a loss for them
		// (spec §4.F "common failure semantics" extended to this timer
		// case since RPS has no fixed submit deadline otherwise).
		for _, p := range sess.Participants {
			if _, ok := round.Submissions[p.UserID]; !ok {
				if opp := sess.Opponent(p.UserID); opp != nil {
					round.Submissions[p.UserID] = session.RPSSubmission{}
				}
			}
		}
		return r.resolveRound(sess, round, now)
	}
	// Stale timer for a round that has already resolved: nothing to do.
	return Result{}
}

// Leave overrides DefaultLeave: RPS forfeits don't add a round-win bonus
// on top of whatever tally the remaining participant had, they rewrite
// both scores to the spread payout (300/0), same as a decisive finish.
func (r *RPS) Leave(sess *session.Session, userID string, now time.Time) Result {
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
		remaining.Score = 300
		if leaver := sess.Participant(userID); leaver != nil {
			leaver.Score = 0
		}
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

	return Result{}
}
