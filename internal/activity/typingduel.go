package activity

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/wire"
)

// Anti-cheat thresholds (spec §4.F.1: "implementers should pick
// thresholds and document them"). An inter-sample rate above
// maxCharsPerSecond is flagged as implausible; a sample landing after the
// round deadline is flagged as late input.
const (
	maxCharsPerSecond = 25.0
	skewClampMs       = 600
	skewAlpha         = 0.4
)

// typingRoundData is the kind-specific body behind Round.Payload for a
// typing-duel round: the prompt/time-limit pair from spec §3 plus the
// in-progress keystroke series accumulated before a final submit.
type typingRoundData struct {
	session.TypingPayload
	Keystrokes map[string][]session.KeystrokeSample
}

// TypingDuel implements the single-round typing race (spec §4.F.1).
type TypingDuel struct {
	minLen, maxLen int
	timeLimit      time.Duration
	charset        []string
}

// NewTypingDuel builds a TypingDuel from the process-wide typing defaults.
func NewTypingDuel(d config.TypingDefaults) *TypingDuel {
	return &TypingDuel{
		minLen:    d.MinPromptLen,
		maxLen:    d.MaxPromptLen,
		timeLimit: d.TimeLimit,
		charset:   defaultPrompts,
	}
}

func (t *TypingDuel) Kind() session.Kind { return session.KindTypingDuel }

// configFor returns this session's effective tuning: the per-session
// override stashed on sess.Config at creation time if present, else this
// Machine's own process-wide defaults.
func (t *TypingDuel) configFor(sess *session.Session) config.TypingDefaults {
	if d, ok := sess.Config.(config.TypingDefaults); ok {
		return d
	}
	return config.TypingDefaults{MinPromptLen: t.minLen, MaxPromptLen: t.maxLen, TimeLimit: t.timeLimit}
}

func (t *TypingDuel) Start(sess *session.Session, now time.Time) Result {
	cfg := t.configFor(sess)
	prompt := t.pickPrompt(cfg.MinPromptLen, cfg.MaxPromptLen)
	round := &session.Round{
		Index: 0,
		State: session.RoundRunning,
		Payload: &typingRoundData{
			TypingPayload: session.TypingPayload{Prompt: prompt, TimeLimit: cfg.TimeLimit},
			Keystrokes:    make(map[string][]session.KeystrokeSample),
		},
		StartedAt:   now,
		Deadline:    now.Add(cfg.TimeLimit),
		Submissions: make(map[string]any),
	}
	sess.Rounds = []*session.Round{round}
	sess.CurrentRound = 0

	return Result{
		Events: []wire.OutboundFrame{
			wire.Event(wire.TypeRoundStarted, wire.RoundStartedPayload{
				SessionID:  sess.ID,
				RoundIndex: 0,
				Payload:    map[string]any{"prompt": prompt, "timeLimitMs": cfg.TimeLimit.Milliseconds()},
				DeadlineMs: round.Deadline.UnixMilli(),
			}),
		},
		ArmTimer: &TimerArm{RoundIndex: 0, Delay: cfg.TimeLimit},
	}
}

// AppendKeystroke normalizes and appends one keystroke sample, enforcing
// the monotonic-ordering invariant (spec §8: "serverTime(k) >=
// serverTime(k') + 1ms"), and returns any anti-cheat incidents newly
// detected by this sample.
func (t *TypingDuel) AppendKeystroke(sess *session.Session, userID string, clientTimeMs int64, length int, paste bool, serverNow time.Time) ([]string, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return nil, errInvalidTransition
	}
	data, ok := round.Payload.(*typingRoundData)
	if !ok {
		return nil, apierr.New(apierr.CodeInternalError)
	}

	skew := updateSkew(sess, userID, clientTimeMs, serverNow)
	serverTimeMs := clientTimeMs + skew

	samples := data.Keystrokes[userID]
	if len(samples) > 0 {
		prev := samples[len(samples)-1].ServerTimeMs
		if serverTimeMs < prev+1 {
			serverTimeMs = prev + 1
		}
	}

	var incidents []string
	if paste {
		incidents = append(incidents, "paste")
	}
	if len(samples) > 0 {
		prev := samples[len(samples)-1]
		dtMs := serverTimeMs - prev.ServerTimeMs
		dChars := length - prev.Length
		if dtMs > 0 && dChars > 0 {
			rate := float64(dChars) / (float64(dtMs) / 1000.0)
			if rate > maxCharsPerSecond {
				incidents = append(incidents, "implausible_rate")
			}
		}
	}
	if serverNow.After(round.Deadline) {
		incidents = append(incidents, "late_input")
	}

	data.Keystrokes[userID] = append(samples, session.KeystrokeSample{
		ServerTimeMs: serverTimeMs,
		Length:       length,
		Paste:        paste,
	})
	return incidents, nil
}

func updateSkew(sess *session.Session, userID string, clientTimeMs int64, serverNow time.Time) int64 {
	if sess.Skew == nil {
		sess.Skew = make(map[string]int64)
	}
	sample := serverNow.UnixMilli() - clientTimeMs
	prev, ok := sess.Skew[userID]
	var next int64
	if !ok {
		next = sample
	} else {
		next = int64(skewAlpha*float64(sample) + (1-skewAlpha)*float64(prev))
	}
	if next > skewClampMs {
		next = skewClampMs
	}
	if next < -skewClampMs {
		next = -skewClampMs
	}
	sess.Skew[userID] = next
	return next
}

func (t *TypingDuel) Submit(sess *session.Session, userID string, payload wire.SubmitPayload, now time.Time) (Result, error) {
	round := sess.CurrentRoundPtr()
	if round == nil || round.State != session.RoundRunning {
		return Result{}, errInvalidTransition
	}
	if _, already := round.Submissions[userID]; already {
		return Result{}, nil // duplicate submission: silently ignored
	}
	data, ok := round.Payload.(*typingRoundData)
	if !ok {
		return Result{}, apierr.New(apierr.CodeInternalError)
	}

	duration := now.Sub(round.StartedAt)
	if duration < 0 {
		duration = 0
	}
	perfect := payload.Text == data.Prompt

	metrics := computeMetrics(data.Prompt, payload.Text, duration)
	sub := session.TypingSubmission{
		FinalText:      payload.Text,
		Keystrokes:     data.Keystrokes[userID],
		Metrics:        metrics,
		AntiCheatFlags: nil,
	}
	round.Submissions[userID] = sub

	p := sess.Participant(userID)
	var delta int
	if perfect {
		delta = 100 + int(math.Floor(float64(data.TimeLimit-duration)/float64(time.Second)))
	} else {
		delta = -25
	}
	p.Score += delta

	events := []wire.OutboundFrame{
		wire.Event(wire.TypeScoreUpdated, wire.ScoreUpdatedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	allSubmitted := len(round.Submissions) >= len(sess.Participants)
	if perfect || allSubmitted {
		res := t.endRound(sess, round, now)
		res.Events = append(events, res.Events...)
		return res, nil
	}

	return Result{Events: events}, nil
}

func (t *TypingDuel) endRound(sess *session.Session, round *session.Round, now time.Time) Result {
	round.State = session.RoundDone
	events := []wire.OutboundFrame{
		wire.Event(wire.TypeRoundEnded, wire.RoundEndedPayload{
			SessionID:  sess.ID,
			RoundIndex: round.Index,
			Scores:     scoresOf(sess),
		}),
	}

	winner, loser, draw := decideByScore(sess)
	outcome := &session.Outcome{Draw: draw, WinnerUser: winner, LoserUser: loser}

	return Result{
		RoundEnded:   true,
		SessionEnded: true,
		Outcome:      outcome,
		CancelTimer:  true,
		Events:       events,
	}
}

func (t *TypingDuel) Timer(sess *session.Session, roundIndex int, now time.Time) Result {
	round := sess.CurrentRoundPtr()
	if round == nil || round.Index != roundIndex || round.State != session.RoundRunning {
		return Result{}
	}
	return t.endRound(sess, round, now)
}

func (t *TypingDuel) Leave(sess *session.Session, userID string, now time.Time) Result {
	return DefaultLeave(sess, userID, 0)
}

func (t *TypingDuel) pickPrompt(minLen, maxLen int) string {
	p := t.charset[rand.Intn(len(t.charset))]
	if len(p) < minLen {
		return p
	}
	if len(p) > maxLen {
		return p[:maxLen]
	}
	return p
}

func computeMetrics(prompt, final string, duration time.Duration) session.TypingMetrics {
	correct := 0
	for i := 0; i < len(final) && i < len(prompt); i++ {
		if final[i] == prompt[i] {
			correct++
		}
	}
	accuracy := 0.0
	if len(prompt) > 0 {
		accuracy = float64(correct) / float64(len(prompt))
	}
	wpm := 0.0
	if duration > 0 {
		words := float64(len(strings.Fields(final)))
		wpm = words / (duration.Minutes())
	}
	return session.TypingMetrics{Accuracy: accuracy, Duration: duration, WPM: wpm}
}

func decideByScore(sess *session.Session) (winner, loser string, draw bool) {
	if len(sess.Participants) != 2 {
		return "", "", true
	}
	a, b := sess.Participants[0], sess.Participants[1]
	if a.Score == b.Score {
		return "", "", true
	}
	if a.Score > b.Score {
		return a.UserID, b.UserID, false
	}
	return b.UserID, a.UserID, false
}

// defaultPrompts is the built-in text sample pool NewTypingDuel installs;
// every TypingDuel picks its prompts from it.
var defaultPrompts = []string{
	"The quick brown fox jumps over the lazy dog while the morning sun rises slowly over the quiet hills.",
	"Somewhere between the first cup of coffee and the last email of the day, the whole afternoon disappeared.",
	"A steady rain tapped against the window as the old clock in the hallway ticked past midnight.",
	"Every story worth telling starts with a question nobody thought to ask until it was far too late.",
	"The train pulled away from the station just as the last passenger sprinted across the empty platform.",
}
