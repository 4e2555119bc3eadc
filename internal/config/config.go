// Package config holds the process-wide defaults and the per-kind round
// tuning that session creation may override. No third-party config library
// appears anywhere in the retrieved example pack, so this one ambient
// concern is carried on the standard library (os.Getenv) rather than an
// ecosystem dependency — see DESIGN.md.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	HTTPAddr string

	// AuthSecret is the shared secret every Bearer token's first segment
	// must match (spec §6.1).
	AuthSecret string

	// Permit & rate limiting.
	PermitTTL              time.Duration
	SubmitLimit            int
	SubmitWindow           time.Duration
	TriviaSubmitLimit      int
	TriviaSubmitWindow     time.Duration
	SessionCreateLimit     int
	SessionCreateWindow    time.Duration
	PendingSessionsPerUser int

	// Lifecycle sweeping.
	EndedRetention   time.Duration
	PendingRetention time.Duration
	JanitorInterval  time.Duration

	// Watchdog.
	InactivityTimeout time.Duration

	Activity ActivityDefaults
}

// ActivityDefaults holds the per-kind defaults from spec.md §4.F, all
// overridable per-session via the create request's config field.
type ActivityDefaults struct {
	Typing   TypingDefaults
	Trivia   TriviaDefaults
	RPS      RPSDefaults
	TicTacToe TicTacToeDefaults
	Story    StoryDefaults
}

type TypingDefaults struct {
	MinPromptLen int           `json:"minPromptLen"`
	MaxPromptLen int           `json:"maxPromptLen"`
	TimeLimit    time.Duration `json:"timeLimit"`
	Countdown    time.Duration `json:"countdown"`
}

type TriviaDefaults struct {
	Rounds    int           `json:"rounds"`
	TimeLimit time.Duration `json:"timeLimit"`
	Countdown time.Duration `json:"countdown"`
}

type RPSDefaults struct {
	WinTarget  int           `json:"winTarget"`
	RoundDelay time.Duration `json:"roundDelay"`
	Countdown  time.Duration `json:"countdown"`
}

type TicTacToeDefaults struct {
	WinTarget int           `json:"winTarget"`
	Countdown time.Duration `json:"countdown"`
}

type StoryDefaults struct {
	ParagraphCap int           `json:"paragraphCap"`
	Countdown    time.Duration `json:"countdown"`
}

// Load reads Config from the environment, falling back to the spec's
// documented defaults for anything unset. The per-kind Activity defaults
// are fixed here and not read from the environment.
func Load() Config {
	return Config{
		HTTPAddr:   getenv("ACTIVITIES_HTTP_ADDR", ":8080"),
		AuthSecret: getenv("ACTIVITIES_AUTH_SECRET", "dev-secret"),

		PermitTTL:              getenvDuration("ACTIVITIES_PERMIT_TTL", 60*time.Second),
		SubmitLimit:            getenvInt("ACTIVITIES_SUBMIT_LIMIT", 5),
		SubmitWindow:           getenvDuration("ACTIVITIES_SUBMIT_WINDOW", 2*time.Second),
		TriviaSubmitLimit:      getenvInt("ACTIVITIES_TRIVIA_SUBMIT_LIMIT", 1),
		TriviaSubmitWindow:     getenvDuration("ACTIVITIES_TRIVIA_SUBMIT_WINDOW", 5*time.Second),
		SessionCreateLimit:     getenvInt("ACTIVITIES_SESSION_CREATE_LIMIT", 20),
		SessionCreateWindow:    getenvDuration("ACTIVITIES_SESSION_CREATE_WINDOW", 60*time.Second),
		PendingSessionsPerUser: getenvInt("ACTIVITIES_PENDING_CAP", 3),

		EndedRetention:   getenvDuration("ACTIVITIES_ENDED_RETENTION", time.Hour),
		PendingRetention: getenvDuration("ACTIVITIES_PENDING_RETENTION", 24*time.Hour),
		JanitorInterval:  getenvDuration("ACTIVITIES_JANITOR_INTERVAL", 5*time.Minute),

		InactivityTimeout: getenvDuration("ACTIVITIES_INACTIVITY_TIMEOUT", 120*time.Second),

		Activity: ActivityDefaults{
			Typing: TypingDefaults{
				MinPromptLen: 70,
				MaxPromptLen: 120,
				TimeLimit:    40 * time.Second,
				Countdown:    10 * time.Second,
			},
			Trivia: TriviaDefaults{
				Rounds:    5,
				TimeLimit: 18 * time.Second,
				Countdown: 10 * time.Second,
			},
			RPS: RPSDefaults{
				WinTarget:  3,
				RoundDelay: 5 * time.Second,
				Countdown:  5 * time.Second,
			},
			TicTacToe: TicTacToeDefaults{
				WinTarget: 2,
				Countdown: 3 * time.Second,
			},
			Story: StoryDefaults{
				ParagraphCap: 3,
				Countdown:    10 * time.Second,
			},
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
