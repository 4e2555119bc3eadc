package activity

import (
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// ticTacToeRoundData is the kind-specific body behind Round.Payload: the
// 9-cell board plus whose turn it is.
type ticTacToeRoundData struct {
	Board [9]session.Mark
	Turn  string // userID to move
}

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// TicTacToe implements best-of-N tic-tac-toe with alternating marks (spec
// §4.F.4).
type TicTacToe struct {
	winTarget int
	countdown time.Duration
}

// NewTicTacToe builds a TicTacToe machine from the process-wide defaults.
func NewTicTacToe(d config.TicTacToeDefaults) *TicTacToe {
	return &TicTacToe{winTarget: d.WinTarget, countdown: d.Countdown}
}

func (g *TicTacToe) Kind() session.Kind { return session.KindTicTacToe }

// configFor returns this session's effective tuning: the per-session
// override stashed on sess.Config at creation time if present, else this
// Machine's own process-wide defaults.
func (g *TicTacToe) configFor(sess *session.Session) config.TicTacToeDefaults {
	if d, ok := sess.Config.(config.TicTacToeDefaults); ok {
		return d
	}
	return config.TicTacToeDefaults{WinTarget: g.winTarget, Countdown: g.countdown}
}

func (g *TicTacToe) Start(sess *session.Session, now time.Time) Result {
	sess.Participants[0].Role = string(session.MarkX)
	sess.Participants[1].Role = string(session.MarkO)
	sess.Rounds = nil
	sess.CurrentRound = -1
	return g.startRound(sess, 0, sess.Participants[0].UserID, now)
}

func (g *TicTacToe) startRound(sess *session.Session, idx int, firstMover string, now time.Time) Result {
	round := &session.Round{
		Index:       idx,
		State:       session.RoundRunning,
		Payload:     &ticTacToeRoundData{Turn: firstMover},
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
				Payload:    map[string]any{"turn": firstMover},
			}),
		},
	}
}

func (g *TicTacToe) Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return Result{}, errInvalidTransition
	}
	data := round.Payload.(*ticTacToeRoundData)
	if data.Turn != userID {
		return Result{}, apierr.New(apierr.CodeInvalidRequest)
	}
	if payload.Cell == nil || *payload.Cell < 0 || *payload.Cell > 8 {
		return Result{}, apierr.New(apierr.CodeBadFormat)
	}
	if data.Board[*payload.Cell] != "" {
		return Result{}, apierr.New(apierr.CodeInvalidRequest)
	}

	p := sess.Participant(userID)
	mark := session.Mark(p.Role)
	data.Board[*payload.Cell] = mark
	round.Submissions[userID] = session.TicTacToeSubmission{Cell: *payload.Cell}

	events := []wire.OutboundFrame{
		wire.Event(wire.TypeScoreUpdated, wire.ScoreUpdatedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	if winner := checkWin(data.Board); winner != "" {
		var winnerID string
		for _, pp := range sess.Participants {
			if pp.Role == string(winner) {
				winnerID = pp.UserID
				pp.Score++
			}
		}
		return g.endRound(sess, round, winnerID, now)
	}
	if boardFull(data.Board) {
		return g.endRound(sess, round, "", now)
	}

	opp := sess.Opponent(userID)
	data.Turn = opp.UserID
	return Result{Events: events}, nil
}

func (g *TicTacToe) endRound(sess *session.Session, round *session.Round, roundWinner string, now time.Time) (Result, error) {
	round.State = session.RoundDone
	events := []wire.OutboundFrame{
		wire.Event(wire.TypeRoundEnded, wire.RoundEndedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	if done, outcome := g.matchComplete(sess); done {
		return Result{
			RoundEnded:   true,
			SessionEnded: true,
			Outcome:      outcome,
			CancelTimer:  true,
			Events:       events,
		}, nil
	}

	// Alternate who moves first next round; the round loser (or, on a
	// draw round, the other participant from last round's first mover)
	// opens.
	nextFirst := sess.Opponent(firstMoverOf(round)).UserID
	if roundWinner != "" {
		nextFirst = sess.Opponent(roundWinner).UserID
	}
	next := g.startRound(sess, round.Index+1, nextFirst, now)
	return Result{
		RoundEnded: true,
		Events:     append(events, next.Events...),
		ArmTimer:   &TimerArm{RoundIndex: round.Index + 1, Delay: g.configFor(sess).Countdown},
	}, nil
}

func firstMoverOf(round *session.Round) string {
	// endRound runs before Submit advances Turn, so Turn still names the
	// player who made the last move. A round only ends without a winner on
	// a full board, after 9 moves, and the 9th move is the first mover's.
	if data, ok := round.Payload.(*ticTacToeRoundData); ok {
		return data.Turn
	}
	return ""
}

func (g *TicTacToe) matchComplete(sess *session.Session) (bool, *session.Outcome) {
	if len(sess.Participants) != 2 {
		return true, &session.Outcome{Draw: true}
	}
	winTarget := g.configFor(sess).WinTarget
	a, b := sess.Participants[0], sess.Participants[1]
	if a.Score >= winTarget || b.Score >= winTarget {
		if a.Score > b.Score {
			return true, &session.Outcome{WinnerUser: a.UserID, LoserUser: b.UserID}
		}
		if b.Score > a.Score {
			return true, &session.Outcome{WinnerUser: b.UserID, LoserUser: a.UserID}
		}
	}
	return false, nil
}

func checkWin(board [9]session.Mark) session.Mark {
	for _, line := range winLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != "" && a == b && b == c {
			return a
		}
	}
	return ""
}

func boardFull(board [9]session.Mark) bool {
	for _, c := range board {
		if c == "" {
			return false
		}
	}
	return true
}

func (g *TicTacToe) Timer(sess *session.Session, roundIndex int, now time.Time) Result {
	// The only timer this machine arms is the Countdown delay endRound
	// hands back, and by then the next round is already running: endRound
	// starts it at once, with no countdown before it. Rounds have no
	// per-move deadline, so a firing Timer call is a no-op.
	return Result{}
}

func (g *TicTacToe) Leave(sess *session.Session, userID string, now time.Time) Result {
	return DefaultLeave(sess, userID, 0)
}
