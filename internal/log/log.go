// Package log wraps zerolog with the session/user tagging helpers the rest
// of the core calls into: every line gets the session id (and user id,
// where known) attached so log lines stay queryable per session.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide structured logger handed to every component.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing JSON lines to w (stderr when w is nil),
// honoring level.
func New(w io.Writer, level zerolog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339
	zl := zerolog.New(w).With().Timestamp().Logger().Level(level)
	return &Logger{zl: zl}
}

// Default builds a Logger writing to stderr at info level, suitable for
// cmd/activities-server's fallback before config is loaded.
func Default() *Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// WithSession returns a Logger that auto-tags every line with sessionID,
// mirroring LogWithUser's "always include user ID if available" rule.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{zl: l.zl.With().Str("session", sessionID).Logger()}
}

// WithUser returns a Logger that auto-tags every line with userID.
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{zl: l.zl.With().Str("user", userID).Logger()}
}

// Fields returns a Logger with the given key/value pairs attached to every
// subsequent line, the equivalent of the teacher's logger.WithFields(...).
func (l *Logger) Fields(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }

// Error logs msg with err attached, or without it if err is nil — the
// equivalent of the teacher's LogError helper.
func (l *Logger) Error(msg string, err error) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

// Success logs operation+" completed" at info level, matching LogSuccess.
func (l *Logger) Success(operation string) {
	l.zl.Info().Msg(operation + " completed")
}
