package wire

// All event payloads carry sessionId (spec §4.G: "Events emitted (all
// carry sessionId)").

// PresencePayload accompanies activity.session.presence.
type PresencePayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Joined    bool   `json:"joined"`
	Ready     bool   `json:"ready"`
}

// CountdownPayload accompanies activity.session.countdown.
type CountdownPayload struct {
	SessionID string `json:"sessionId"`
	Phase     string `json:"phase"`
	DurationMs int64 `json:"durationMs"`
}

// CountdownCancelledPayload accompanies activity.session.countdown.cancelled.
type CountdownCancelledPayload struct {
	SessionID string `json:"sessionId"`
}

// SessionStartedPayload accompanies activity.session.started.
type SessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
}

// RoundStartedPayload accompanies activity.round.started.
type RoundStartedPayload struct {
	SessionID string `json:"sessionId"`
	RoundIndex int    `json:"roundIndex"`
	Payload    any    `json:"payload"`
	DeadlineMs int64  `json:"deadlineMs"`
}

// ScoreUpdatedPayload accompanies activity.score.updated.
type ScoreUpdatedPayload struct {
	SessionID string         `json:"sessionId"`
	RoundIndex int           `json:"roundIndex"`
	Scores     map[string]int `json:"scores"`
}

// AntiCheatFlagPayload accompanies activity.anti_cheat.flag.
type AntiCheatFlagPayload struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	RoundIndex int     `json:"roundIndex"`
	Incidents []string `json:"incidents"`
}

// RoundEndedPayload accompanies activity.round.ended.
type RoundEndedPayload struct {
	SessionID string         `json:"sessionId"`
	RoundIndex int           `json:"roundIndex"`
	Scores     map[string]int `json:"scores"`
}

// SessionEndedPayload accompanies activity.session.ended.
type SessionEndedPayload struct {
	SessionID  string         `json:"sessionId"`
	Draw       bool           `json:"draw"`
	WinnerUser string         `json:"winnerUserId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Scores     map[string]int `json:"scores"`
}

// SessionCreatedPayload accompanies session.created.
type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
}

// SnapshotPayload is the one-time frame sent right after a successful
// websocket attach (spec §6.2).
type SnapshotPayload struct {
	SessionID    string         `json:"sessionId"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	Phase        string         `json:"phase"`
	Participants []ParticipantView `json:"participants"`
	Scores       map[string]int `json:"scores"`
	RoundIndex   int            `json:"roundIndex"`
}

// ParticipantView is the public projection of a Participant.
type ParticipantView struct {
	UserID string `json:"userId"`
	Joined bool   `json:"joined"`
	Ready  bool   `json:"ready"`
	Score  int    `json:"score"`
	Role   string `json:"role,omitempty"`
}
