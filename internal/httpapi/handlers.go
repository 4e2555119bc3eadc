package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/coordinator"
	"crab.casa/activities/internal/session"
)

type createRequest struct {
	ActivityKey   string   `json:"activityKey"`
	CreatorUserID string   `json:"creatorUserId"`
	Participants  []string `json:"participants"`
	Config        any      `json:"config,omitempty"`
}

type createResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if req.ActivityKey == "" || req.CreatorUserID == "" || len(req.Participants) != 2 {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if err := authorizeAs(p, req.CreatorUserID); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.coord.Create(req.CreatorUserID, req.ActivityKey, req.Participants, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{SessionID: sess.ID})
}

type sessionListResponse struct {
	Sessions []coordinator.SessionSummary `json:"sessions"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: s.coord.ListSessions(status)})
}

// sessionView is the GET /activities/session/:id response body (spec
// §6.1 "SessionView").
type sessionView struct {
	ID           string                `json:"id"`
	Kind         string                `json:"kind"`
	Status       string                `json:"status"`
	Phase        string                `json:"phase"`
	Participants []participantView     `json:"participants"`
	CurrentRound int                   `json:"currentRound"`
	Outcome      *session.Outcome      `json:"outcome,omitempty"`
}

type participantView struct {
	UserID string `json:"userId"`
	Joined bool   `json:"joined"`
	Ready  bool   `json:"ready"`
	Score  int    `json:"score"`
	Role   string `json:"role,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.coord.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]participantView, len(sess.Participants))
	for i, p := range sess.Participants {
		views[i] = participantView{UserID: p.UserID, Joined: p.Joined, Ready: p.Ready, Score: p.Score, Role: p.Role}
	}
	writeJSON(w, http.StatusOK, sessionView{
		ID:           sess.ID,
		Kind:         string(sess.Kind),
		Status:       string(sess.Status),
		Phase:        string(sess.Phase),
		Participants: views,
		CurrentRound: sess.CurrentRound,
		Outcome:      sess.Outcome,
	})
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

type joinResponse struct {
	OK              bool    `json:"ok"`
	PermitTTLSeconds float64 `json:"permitTtlSeconds"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r)

	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if err := authorizeAs(p, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	ttl, err := s.coord.Join(id, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, joinResponse{OK: true, PermitTTLSeconds: ttl.Seconds()})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r)

	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if err := authorizeAs(p, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.coord.Leave(id, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type readyRequest struct {
	UserID string `json:"userId"`
	Ready  *bool  `json:"ready,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r)

	var req readyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if err := authorizeAs(p, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.coord.Ready(id, req.UserID, req.Ready); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

type roleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// handleSetRole lets a Story Builder participant pick a role (boy/girl)
// before the lobby can advance to countdown.
func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r)

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Role == "" {
		writeError(w, apierr.New(apierr.CodeInvalidRequest))
		return
	}
	if err := authorizeAs(p, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.coord.SetRole(id, req.UserID, req.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r)

	if err := s.coord.Start(id, p.UserID, p.Admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: string(apierr.CodeInternalError)})
		return
	}
	writeJSON(w, apierr.HTTPStatus(err), errorBody{Error: string(ae.Code), Details: ae.Details})
}
