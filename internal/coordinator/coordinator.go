// Package coordinator implements the Session Coordinator component (spec
// §4.G): the single entry point that routes HTTP commands and websocket
// frames to the right activity machine under each session's exclusive
// lock, publishes ordered events through the socket hub, and arms/cancels
// timers through the scheduler.
package coordinator

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crab.casa/activities/internal/activity"
	"crab.casa/activities/internal/apierr"
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

// Coordinator is the process-wide container wiring together every other
// component; exactly one instance exists per process (spec §9: "no
// process-global singletons" — every handler receives this value rather
// than reaching for file-scope state).
type Coordinator struct {
	store     *store.Store
	scheduler *clock.Scheduler
	limiter   *ratelimit.Limiter
	permits   *permit.Registry
	hub       *sockethub.Hub
	registry  activity.Registry
	cfg       config.Config
	logger    *log.Logger
	recorder  progression.Recorder

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Coordinator. The returned value's TimerFired method must be
// passed to clock.NewScheduler by the caller (cmd/activities-server) so
// timer callbacks re-enter the coordinator.
func New(st *store.Store, lim *ratelimit.Limiter, perm *permit.Registry, hub *sockethub.Hub, reg activity.Registry, cfg config.Config, logger *log.Logger, recorder progression.Recorder) *Coordinator {
	return &Coordinator{
		store:    st,
		limiter:  lim,
		permits:  perm,
		hub:      hub,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// AttachScheduler wires the scheduler after construction, to break the
// constructor cycle (the scheduler's onFire callback is the coordinator
// itself).
func (c *Coordinator) AttachScheduler(s *clock.Scheduler) {
	c.scheduler = s
}

func (c *Coordinator) lockFor(sessionID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[sessionID] = l
	}
	return l
}

func (c *Coordinator) dropLock(sessionID string) {
	c.locksMu.Lock()
	delete(c.locks, sessionID)
	c.locksMu.Unlock()
}

// Create allocates a new session in `lobby` (spec §4.G "create").
func (c *Coordinator) Create(creatorUserID, activityKey string, participants []string, cfgOverride any) (*session.Session, error) {
	if !c.limiter.Check("session.create:"+creatorUserID, c.cfg.SessionCreateLimit, c.cfg.SessionCreateWindow) {
		return nil, apierr.New(apierr.CodeRateLimitExceeded)
	}

	kind := session.Kind(activityKey)
	if !kind.Valid() {
		return nil, apierr.New(apierr.CodeUnsupportedActivity)
	}
	if len(participants) != 2 || participants[0] == participants[1] || participants[0] == "" || participants[1] == "" {
		return nil, apierr.New(apierr.CodeInvalidParticipants)
	}

	if c.pendingCount(creatorUserID) >= c.cfg.PendingSessionsPerUser {
		return nil, apierr.New(apierr.CodeRateLimitExceeded)
	}

	sess := &session.Session{
		ID:            uuid.NewString(),
		Kind:          kind,
		Status:        session.StatusPending,
		Phase:         session.PhaseLobby,
		CreatorUserID: creatorUserID,
		Participants: []*session.Participant{
			{UserID: participants[0]},
			{UserID: participants[1]},
		},
		CurrentRound: -1,
		CreatedAt:    time.Now(),
		Config:       c.resolveConfig(kind, cfgOverride),
	}
	c.store.Save(sess)

	c.hub.Publish(sess.ID, wire.Event(wire.TypeSessionCreated, wire.SessionCreatedPayload{
		SessionID: sess.ID,
		Kind:      string(sess.Kind),
	}))
	c.logger.WithSession(sess.ID).Info("session created")
	return sess, nil
}

// resolveConfig merges a create request's raw per-session override (decoded
// from JSON into a map by encoding/json, or nil) over this process's
// defaults for kind, and returns the merged value typed as the kind's own
// config.XDefaults struct so each Machine's configFor type-assertion finds
// it. Fields absent from the override JSON keep the process default,
// because json.Unmarshal only touches fields present in its input.
func (c *Coordinator) resolveConfig(kind session.Kind, cfgOverride any) any {
	if cfgOverride == nil {
		switch kind {
		case session.KindTypingDuel:
			return c.cfg.Activity.Typing
		case session.KindTrivia:
			return c.cfg.Activity.Trivia
		case session.KindRPS:
			return c.cfg.Activity.RPS
		case session.KindTicTacToe:
			return c.cfg.Activity.TicTacToe
		case session.KindStory:
			return c.cfg.Activity.Story
		default:
			return nil
		}
	}

	raw, err := json.Marshal(cfgOverride)
	if err != nil {
		return c.resolveConfig(kind, nil)
	}

	switch kind {
	case session.KindTypingDuel:
		merged := c.cfg.Activity.Typing
		_ = json.Unmarshal(raw, &merged)
		return merged
	case session.KindTrivia:
		merged := c.cfg.Activity.Trivia
		_ = json.Unmarshal(raw, &merged)
		return merged
	case session.KindRPS:
		merged := c.cfg.Activity.RPS
		_ = json.Unmarshal(raw, &merged)
		return merged
	case session.KindTicTacToe:
		merged := c.cfg.Activity.TicTacToe
		_ = json.Unmarshal(raw, &merged)
		return merged
	case session.KindStory:
		merged := c.cfg.Activity.Story
		_ = json.Unmarshal(raw, &merged)
		return merged
	default:
		return nil
	}
}

func (c *Coordinator) pendingCount(userID string) int {
	n := 0
	for _, s := range c.store.List(store.Filter{Status: session.StatusPending}) {
		if s.CreatorUserID == userID {
			n++
		}
	}
	return n
}

// Join marks userID joined and grants a websocket attach permit (spec
// §4.G "join").
func (c *Coordinator) Join(sessionID, userID string) (time.Duration, error) {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return 0, apierr.New(apierr.CodeSessionNotFound)
	}
	p := sess.Participant(userID)
	if p == nil {
		return 0, apierr.New(apierr.CodeParticipantNotInSession)
	}
	if sess.Status == session.StatusEnded {
		return 0, apierr.New(apierr.CodeSessionStateMissing)
	}

	p.Joined = true
	sess.Touch()
	c.store.Save(sess)
	c.permits.Grant(sessionID, userID, c.cfg.PermitTTL)

	c.hub.Publish(sessionID, wire.Event(wire.TypePresence, wire.PresencePayload{
		SessionID: sessionID, UserID: userID, Joined: true, Ready: p.Ready,
	}))
	return c.cfg.PermitTTL, nil
}

// ConsumeJoinPermit is called from the websocket upgrade path; exported so
// internal/wsapi never touches the permit registry directly.
func (c *Coordinator) ConsumeJoinPermit(sessionID, userID string) bool {
	return c.permits.Consume(sessionID, userID)
}

// Snapshot returns the data the websocket handler sends as the initial
// session.snapshot frame.
func (c *Coordinator) Snapshot(sessionID string) (wire.SnapshotPayload, error) {
	sess, ok := c.store.Load(sessionID)
	if !ok {
		return wire.SnapshotPayload{}, apierr.New(apierr.CodeSessionNotFound)
	}
	views := make([]wire.ParticipantView, len(sess.Participants))
	for i, p := range sess.Participants {
		views[i] = wire.ParticipantView{UserID: p.UserID, Joined: p.Joined, Ready: p.Ready, Score: p.Score, Role: p.Role}
	}
	return wire.SnapshotPayload{
		SessionID:    sess.ID,
		Kind:         string(sess.Kind),
		Status:       string(sess.Status),
		Phase:        string(sess.Phase),
		Participants: views,
		Scores:       scoresOf(sess),
		RoundIndex:   sess.CurrentRound,
	}, nil
}

// AttachSocket registers an already-upgraded connection with the socket
// hub, called by internal/wsapi after ConsumeJoinPermit succeeds; the hub
// itself is never exposed outside this package, the same way the permit
// registry isn't. Returns the Socket the caller's read loop pumps from and
// a cleanup func the caller defers, which also drives the
// disconnect-triggers-leave semantics.
func (c *Coordinator) AttachSocket(conn *websocket.Conn, sessionID, userID string) (*sockethub.Socket, func()) {
	sock := c.hub.Attach(conn, sessionID, userID)
	return sock, func() {
		c.hub.Detach(sessionID, sock)
		c.handleDisconnect(sessionID, userID)
	}
}

// SendSnapshot sends payload to sock alone, used right after attach.
func (c *Coordinator) SendSnapshot(sock *sockethub.Socket, payload wire.SnapshotPayload) {
	c.hub.SendOne(sock, wire.Event(wire.TypeSessionSnapshot, payload))
}

// SendFrame sends frame to sock alone, routed through the hub's per-socket
// outbound queue so it can never race the writePump goroutine draining
// publishes for the same connection. wsapi uses this for ack/error/pong
// replies instead of writing the connection directly.
func (c *Coordinator) SendFrame(sock *sockethub.Socket, frame wire.OutboundFrame) {
	c.hub.SendOne(sock, frame)
}

func (c *Coordinator) handleDisconnect(sessionID, userID string) {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return
	}
	if sess.Status != session.StatusRunning {
		return
	}
	// Another socket for this user may still be connected (e.g. a
	// reconnect race); only treat this as a leave if none remain.
	for _, uid := range c.hub.Sockets(sessionID) {
		if uid == userID {
			return
		}
	}
	c.applyLeave(sess, userID)
}

// Ready toggles readiness; entering/cancelling countdown as needed (spec
// §4.G "ready").
func (c *Coordinator) Ready(sessionID, userID string, ready *bool) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	if sess.Phase != session.PhaseLobby && sess.Phase != session.PhaseCountdown {
		return apierr.New(apierr.CodeSessionNotInLobby)
	}
	p := sess.Participant(userID)
	if p == nil {
		return apierr.New(apierr.CodeParticipantNotInSession)
	}

	if ready == nil {
		p.Ready = !p.Ready
	} else {
		p.Ready = *ready
	}
	sess.Touch()

	c.hub.Publish(sessionID, wire.Event(wire.TypePresence, wire.PresencePayload{
		SessionID: sessionID, UserID: userID, Joined: p.Joined, Ready: p.Ready,
	}))

	if sess.Phase == session.PhaseCountdown && !p.Ready {
		c.cancelCountdown(sess)
	} else if sess.Phase == session.PhaseLobby && sess.AllReady() && sess.JoinedCount() >= 2 && rolesReady(sess) {
		c.enterCountdown(sess)
	}

	c.store.Save(sess)
	return nil
}

// SetRole records a participant's Story Builder role pick (spec §4.F.5:
// lobby additionally requires each participant to pick boy/girl before the
// session can leave the lobby). Every other kind rejects it with
// invalid_request.
func (c *Coordinator) SetRole(sessionID, userID, role string) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	if sess.Kind != session.KindStory {
		return apierr.New(apierr.CodeInvalidRequest)
	}
	if sess.Phase != session.PhaseLobby {
		return apierr.New(apierr.CodeSessionNotInLobby)
	}
	p := sess.Participant(userID)
	if p == nil {
		return apierr.New(apierr.CodeParticipantNotInSession)
	}
	switch session.StoryRole(role) {
	case session.StoryRoleBoy, session.StoryRoleGirl:
	default:
		return apierr.New(apierr.CodeBadFormat)
	}
	p.Role = role
	sess.Touch()

	c.hub.Publish(sessionID, wire.Event(wire.TypePresence, wire.PresencePayload{
		SessionID: sessionID, UserID: userID, Joined: p.Joined, Ready: p.Ready,
	}))

	if sess.AllReady() && sess.JoinedCount() >= 2 && rolesReady(sess) {
		c.enterCountdown(sess)
	}

	c.store.Save(sess)
	return nil
}

// rolesReady reports whether the lobby is clear to advance: every kind but
// Story Builder has no role gate, and Story Builder requires every joined
// participant to have picked a role first.
func rolesReady(sess *session.Session) bool {
	if sess.Kind != session.KindStory {
		return true
	}
	for _, p := range sess.Participants {
		if p.Joined && p.Role == "" {
			return false
		}
	}
	return true
}

// Start forces entry into countdown, called by the creator or an admin
// (spec §4.G "start").
func (c *Coordinator) Start(sessionID, callerUserID string, admin bool) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	if sess.Phase != session.PhaseLobby && sess.Phase != session.PhaseCountdown {
		return apierr.New(apierr.CodeSessionNotInLobby)
	}
	if sess.CreatorUserID != callerUserID && !admin {
		return apierr.New(apierr.CodeForbidden)
	}
	if sess.JoinedCount() < 2 {
		return apierr.New(apierr.CodeSessionNotInLobby)
	}
	if !rolesReady(sess) {
		return apierr.New(apierr.CodeSessionNotInLobby)
	}

	if sess.Phase == session.PhaseLobby {
		c.enterCountdown(sess)
	}
	c.store.Save(sess)
	return nil
}

func (c *Coordinator) countdownDelay(sess *session.Session) time.Duration {
	switch d := sess.Config.(type) {
	case config.TypingDefaults:
		return d.Countdown
	case config.TriviaDefaults:
		return d.Countdown
	case config.RPSDefaults:
		return d.Countdown
	case config.TicTacToeDefaults:
		return d.Countdown
	case config.StoryDefaults:
		return d.Countdown
	default:
		return 10 * time.Second
	}
}

func (c *Coordinator) enterCountdown(sess *session.Session) {
	sess.Phase = session.PhaseCountdown
	sess.Touch()
	delay := c.countdownDelay(sess)
	c.hub.Publish(sess.ID, wire.Event(wire.TypeCountdown, wire.CountdownPayload{
		SessionID: sess.ID, Phase: string(session.PhaseCountdown), DurationMs: delay.Milliseconds(),
	}))
	c.scheduler.Schedule(sess.ID, clock.RoundLobbyCountdown, delay)
}

func (c *Coordinator) cancelCountdown(sess *session.Session) {
	sess.Phase = session.PhaseLobby
	sess.Touch()
	c.scheduler.Cancel(sess.ID)
	c.hub.Publish(sess.ID, wire.Event(wire.TypeCountdownCancelled, wire.CountdownCancelledPayload{SessionID: sess.ID}))
}

// TimerFired is the clock.OnElapsed callback wired by cmd/activities-server
// (spec §4.A: "timer firings re-enter G through A's callback").
func (c *Coordinator) TimerFired(sessionID string, roundIndex int) {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return
	}

	switch roundIndex {
	case clock.RoundLobbyCountdown:
		c.enterRunning(sess)
		c.store.Save(sess)
	case clock.RoundWatchdog:
		c.fireWatchdog(sess)
		c.store.Save(sess)
	default:
		m, ok := c.registry[sess.Kind]
		if !ok || sess.Status != session.StatusRunning {
			return
		}
		res := m.Timer(sess, roundIndex, time.Now())
		c.applyResult(sess, res)
		c.store.Save(sess)
	}
}

func (c *Coordinator) enterRunning(sess *session.Session) {
	m, ok := c.registry[sess.Kind]
	if !ok {
		return
	}
	sess.Status = session.StatusRunning
	sess.Phase = session.PhaseRunning
	sess.LastActivityAt = time.Now()
	sess.Touch()

	c.hub.Publish(sess.ID, wire.Event(wire.TypeSessionStarted, wire.SessionStartedPayload{
		SessionID: sess.ID, Kind: string(sess.Kind),
	}))

	res := m.Start(sess, time.Now())
	c.applyResult(sess, res)
}

func (c *Coordinator) fireWatchdog(sess *session.Session) {
	if sess.Status != session.StatusRunning || sess.StatsRecorded {
		return
	}
	outcome := &session.Outcome{Draw: true, Reason: "inactivity"}
	c.finalizeSession(sess, outcome, nil)
}

// applyResult publishes a Machine's events, arms/cancels the follow-up
// timer, and finalizes the session on SessionEnded. Every mutating
// command funnels its Machine result through here so arming policy stays
// in one place.
func (c *Coordinator) applyResult(sess *session.Session, res activity.Result) {
	for _, ev := range res.Events {
		c.hub.Publish(sess.ID, ev)
	}
	sess.LastActivityAt = time.Now()
	sess.Touch()

	if res.SessionEnded {
		c.finalizeSession(sess, res.Outcome, nil)
		return
	}
	if res.CancelTimer {
		c.scheduler.Cancel(sess.ID)
		return
	}
	if res.ArmTimer != nil {
		c.scheduler.Schedule(sess.ID, res.ArmTimer.RoundIndex, res.ArmTimer.Delay)
		return
	}
	// No explicit timer from the machine: refresh the inactivity
	// watchdog so a stalled running session still terminates.
	c.scheduler.Schedule(sess.ID, clock.RoundWatchdog, c.cfg.InactivityTimeout)
}

// finalizeSession applies the stats guard (spec §8: "stats recorded
// exactly once") and transitions the session to ended.
func (c *Coordinator) finalizeSession(sess *session.Session, outcome *session.Outcome, extraEvents []wire.OutboundFrame) {
	c.scheduler.Cancel(sess.ID)
	if sess.StatsRecorded {
		return
	}
	sess.StatsRecorded = true
	sess.Status = session.StatusEnded
	sess.Phase = session.PhaseEnded
	sess.EndedAt = time.Now()
	sess.Outcome = outcome
	sess.Touch()

	for _, ev := range extraEvents {
		c.hub.Publish(sess.ID, ev)
	}
	c.hub.Publish(sess.ID, wire.Event(wire.TypeSessionEnded, wire.SessionEndedPayload{
		SessionID:  sess.ID,
		Draw:       outcome.Draw,
		WinnerUser: outcome.WinnerUser,
		Reason:     outcome.Reason,
		Scores:     scoresOf(sess),
	}))

	if c.recorder != nil {
		rec := progression.Outcome{
			SessionID:  sess.ID,
			Kind:       sess.Kind,
			WinnerUser: outcome.WinnerUser,
			LoserUser:  outcome.LoserUser,
			Draw:       outcome.Draw,
			Reason:     outcome.Reason,
		}
		if rec.Draw && len(sess.Participants) == 2 {
			// A draw names no winner or loser; the recorder credits both
			// participants of a draw through these two fields.
			rec.WinnerUser, rec.LoserUser = sess.Participants[0].UserID, sess.Participants[1].UserID
		}
		c.recorder.RecordOutcome(rec, sess.EndedAt)
	}
	c.logger.WithSession(sess.ID).Success("session ended")
}

// Leave handles an explicit HTTP leave command (spec §4.G "leave").
func (c *Coordinator) Leave(sessionID, userID string) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	p := sess.Participant(userID)
	if p == nil {
		return apierr.New(apierr.CodeParticipantNotInSession)
	}

	if sess.Status == session.StatusRunning {
		c.applyLeave(sess, userID)
	} else {
		p.Joined = false
		p.Ready = false
		sess.Touch()
		if sess.Phase == session.PhaseCountdown {
			c.cancelCountdown(sess)
		}
		c.hub.Publish(sessionID, wire.Event(wire.TypePresence, wire.PresencePayload{
			SessionID: sessionID, UserID: userID, Joined: false, Ready: false,
		}))
	}
	c.store.Save(sess)
	return nil
}

// applyLeave covers the forfeit / zero-participant rule shared by the
// explicit leave command and a websocket disconnect (spec §4.F "Common
// failure semantics").
func (c *Coordinator) applyLeave(sess *session.Session, userID string) {
	m, ok := c.registry[sess.Kind]
	if !ok {
		return
	}
	if p := sess.Participant(userID); p != nil {
		p.Joined = false
	}
	res := m.Leave(sess, userID, time.Now())
	c.applyResult(sess, res)
}

// Submit handles a websocket "submit" frame (spec §4.G "submit").
func (c *Coordinator) Submit(sessionID, userID string, payload wire.SubmitPayload) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	if sess.Participant(userID) == nil {
		return apierr.New(apierr.CodeParticipantNotInSession)
	}
	if sess.Status != session.StatusRunning {
		return apierr.New(apierr.CodeSessionNotRunning)
	}

	limit, window := c.cfg.SubmitLimit, c.cfg.SubmitWindow
	key := "submit:" + sessionID + ":" + userID
	if sess.Kind == session.KindTrivia {
		limit, window = c.cfg.TriviaSubmitLimit, c.cfg.TriviaSubmitWindow
		key = "qt_submit:" + sessionID + ":" + userID
	}
	if !c.limiter.Check(key, limit, window) {
		return apierr.New(apierr.CodeRateLimitExceeded)
	}

	m, ok := c.registry[sess.Kind]
	if !ok {
		return apierr.New(apierr.CodeUnsupportedActivity)
	}
	res, err := m.Submit(sess, userID, payload, time.Now())
	if err != nil {
		return err
	}
	c.applyResult(sess, res)
	c.store.Save(sess)
	return nil
}

// Keystroke handles a websocket "keystroke" frame, valid for typing_duel
// only (spec §4.G "keystroke").
func (c *Coordinator) Keystroke(sessionID, userID string, payload wire.KeystrokePayload) error {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return apierr.New(apierr.CodeSessionNotFound)
	}
	if sess.Kind != session.KindTypingDuel {
		return apierr.New(apierr.CodeInvalidRequest)
	}
	if sess.Status != session.StatusRunning {
		return apierr.New(apierr.CodeSessionNotRunning)
	}
	m, ok := c.registry[sess.Kind].(*activity.TypingDuel)
	if !ok {
		return apierr.New(apierr.CodeInternalError)
	}

	incidents, err := m.AppendKeystroke(sess, userID, payload.ClientTimeMs, payload.Length, payload.Paste, time.Now())
	if err != nil {
		return err
	}
	sess.Touch()
	if len(incidents) > 0 {
		c.hub.Publish(sessionID, wire.Event(wire.TypeAntiCheatFlag, wire.AntiCheatFlagPayload{
			SessionID: sessionID, UserID: userID, RoundIndex: sess.CurrentRound, Incidents: incidents,
		}))
	}
	c.store.Save(sess)
	return nil
}

// Ping handles a websocket "ping" frame, valid in any phase (spec §4.G
// "ping").
func (c *Coordinator) Ping(sessionID, userID string, clientTimeMs int64) (wire.PongPayload, error) {
	lock := c.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := c.store.Load(sessionID)
	if !ok {
		return wire.PongPayload{}, apierr.New(apierr.CodeSessionNotFound)
	}
	now := time.Now()
	if sess.Skew == nil {
		sess.Skew = make(map[string]int64)
	}
	sample := now.UnixMilli() - clientTimeMs
	skew := sample
	if prev, ok := sess.Skew[userID]; ok {
		skew = int64(0.4*float64(sample) + 0.6*float64(prev))
	}
	if skew > 600 {
		skew = 600
	}
	if skew < -600 {
		skew = -600
	}
	sess.Skew[userID] = skew
	c.store.Save(sess)
	return wire.PongPayload{ServerTimeMs: now.UnixMilli(), SkewMs: skew}, nil
}

func scoresOf(sess *session.Session) map[string]int {
	scores := make(map[string]int, len(sess.Participants))
	for _, p := range sess.Participants {
		scores[p.UserID] = p.Score
	}
	return scores
}

// SessionSummary is the projection GET /activities/sessions returns per
// entry.
type SessionSummary struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

// ListSessions returns summaries filtered by status ("all" matches
// everything), sorted by id for a stable response ordering.
func (c *Coordinator) ListSessions(status string) []SessionSummary {
	filter := store.Filter{All: status == "" || status == "all"}
	if !filter.All {
		filter.Status = session.Status(status)
	}
	sessions := c.store.List(filter)
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{ID: s.ID, Kind: string(s.Kind), Status: string(s.Status), Phase: string(s.Phase)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the raw session for the detail endpoint's view projection,
// which internal/httpapi builds to avoid this package importing the HTTP
// response shape.
func (c *Coordinator) Get(sessionID string) (*session.Session, error) {
	sess, ok := c.store.Load(sessionID)
	if !ok {
		return nil, apierr.New(apierr.CodeSessionNotFound)
	}
	return sess, nil
}

// Sweep deletes sessions past their retention window (spec §3
// "Lifecycle"), called periodically by internal/janitor.
func (c *Coordinator) Sweep(now time.Time) int {
	removed := 0
	for _, sess := range c.store.List(store.Filter{All: true}) {
		lock := c.lockFor(sess.ID)
		lock.Lock()
		expired := false
		switch sess.Status {
		case session.StatusEnded:
			expired = now.Sub(sess.EndedAt) > c.cfg.EndedRetention
		case session.StatusPending:
			expired = now.Sub(sess.CreatedAt) > c.cfg.PendingRetention
		}
		if expired {
			c.store.Delete(sess.ID)
			c.scheduler.Cancel(sess.ID)
			removed++
		}
		lock.Unlock()
		if expired {
			c.dropLock(sess.ID)
		}
	}
	return removed
}
