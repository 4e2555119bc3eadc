// Package apierr defines the sentinel error taxonomy shared by the HTTP and
// websocket surfaces. Return these unwrapped — wrapping loses the status
// mapping below.
package apierr

import "net/http"

// Code is one of the taxonomy kinds from the error handling design, not a
// type name.
type Code string

const (
	CodeUnauthorized            Code = "unauthorized"
	CodeForbidden               Code = "forbidden"
	CodeInvalidRequest          Code = "invalid_request"
	CodeInvalidParticipants     Code = "invalid_participants"
	CodeUnsupportedActivity     Code = "unsupported_activity"
	CodeSessionNotFound         Code = "session_not_found"
	CodeSessionStateMissing     Code = "session_state_missing"
	CodeSessionNotInLobby       Code = "session_not_in_lobby"
	CodeSessionNotRunning       Code = "session_not_running"
	CodeRoundNotStarted         Code = "round_not_started"
	CodeRoundNotFound           Code = "round_not_found"
	CodeParticipantNotInSession Code = "participant_not_in_session"
	CodeRateLimitExceeded       Code = "rate_limit_exceeded"
	CodeNotJoined               Code = "not_joined"
	CodeInternalError           Code = "internal_error"
	CodeBadFormat               Code = "bad_format"
)

// statusOf maps each taxonomy kind to its HTTP status. Codes that only ever
// surface on the websocket (bad_format, not_joined as a close code) still
// get an HTTP status in case a future HTTP path needs them.
var statusOf = map[Code]int{
	CodeUnauthorized:            http.StatusUnauthorized,
	CodeForbidden:               http.StatusForbidden,
	CodeInvalidRequest:          http.StatusBadRequest,
	CodeInvalidParticipants:     http.StatusBadRequest,
	CodeUnsupportedActivity:     http.StatusBadRequest,
	CodeSessionNotFound:         http.StatusNotFound,
	CodeSessionStateMissing:     http.StatusGone,
	CodeSessionNotInLobby:       http.StatusConflict,
	CodeSessionNotRunning:       http.StatusConflict,
	CodeRoundNotStarted:         http.StatusConflict,
	CodeRoundNotFound:           http.StatusNotFound,
	CodeParticipantNotInSession: http.StatusForbidden,
	CodeRateLimitExceeded:       http.StatusTooManyRequests,
	CodeNotJoined:               http.StatusForbidden,
	CodeInternalError:           http.StatusInternalServerError,
	CodeBadFormat:               http.StatusBadRequest,
}

// Error is a taxonomy-coded error carrying an optional detail string for
// the {error: code, details?} response body.
type Error struct {
	Code    Code
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return string(e.Code) + ": " + e.Details
	}
	return string(e.Code)
}

// New builds a taxonomy error with no extra detail.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf builds a taxonomy error with a detail string.
func Newf(code Code, details string) *Error {
	return &Error{Code: code, Details: details}
}

// HTTPStatus returns the status code mapped to err's taxonomy kind, or 500
// if err is not an *Error.
func HTTPStatus(err error) int {
	ae, ok := err.(*Error)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, ok := statusOf[ae.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the taxonomy code from err, defaulting to internal_error
// for anything that isn't an *Error.
func CodeOf(err error) Code {
	if ae, ok := err.(*Error); ok {
		return ae.Code
	}
	return CodeInternalError
}

var (
	ErrUnauthorized            = New(CodeUnauthorized)
	ErrForbidden               = New(CodeForbidden)
	ErrInvalidRequest          = New(CodeInvalidRequest)
	ErrInvalidParticipants     = New(CodeInvalidParticipants)
	ErrUnsupportedActivity     = New(CodeUnsupportedActivity)
	ErrSessionNotFound         = New(CodeSessionNotFound)
	ErrSessionStateMissing     = New(CodeSessionStateMissing)
	ErrSessionNotInLobby       = New(CodeSessionNotInLobby)
	ErrSessionNotRunning       = New(CodeSessionNotRunning)
	ErrRoundNotStarted         = New(CodeRoundNotStarted)
	ErrRoundNotFound           = New(CodeRoundNotFound)
	ErrParticipantNotInSession = New(CodeParticipantNotInSession)
	ErrRateLimitExceeded       = New(CodeRateLimitExceeded)
	ErrNotJoined               = New(CodeNotJoined)
	ErrInternalError           = New(CodeInternalError)
	ErrBadFormat               = New(CodeBadFormat)
)
