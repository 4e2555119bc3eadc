package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"crab.casa/activities/internal/activity"
	"crab.casa/activities/internal/clock"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/coordinator"
	"crab.casa/activities/internal/log"
	"crab.casa/activities/internal/permit"
	"crab.casa/activities/internal/progression"
	"crab.casa/activities/internal/ratelimit"
	"crab.casa/activities/internal/session"
	"crab.casa/activities/internal/sockethub"
	"crab.casa/activities/internal/store"
)

type stubBank struct{}

func (stubBank) Pick(difficulty string, count int, excludeIDs []string) ([]session.Question, error) {
	qs := make([]session.Question, count)
	for i := range qs {
		qs[i] = session.Question{ID: "q", Options: []string{"a", "b"}, CorrectOption: 0}
	}
	return qs, nil
}

func newTestServer(t *testing.T) (*Server, config.Config) {
	t.Helper()
	cfg := config.Load()
	cfg.AuthSecret = "testsecret"
	coord := coordinator.New(store.New(), ratelimit.New(), permit.New(), sockethub.New(log.Default()), activity.NewRegistry(stubBank{}, cfg.Activity), cfg, log.Default(), progression.NewMem())
	sched := clock.NewScheduler(coord.TimerFired)
	coord.AttachScheduler(sched)
	return New(coord, cfg, log.Default()), cfg
}

func authHeader(secret, userID string, admin bool) string {
	tok := secret + ":" + userID
	if admin {
		tok += ":admin"
	}
	return "Bearer " + tok
}

func doRequest(t *testing.T, s *Server, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleCreate_Succeeds(t *testing.T) {
	s, cfg := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "alice", false), createRequest{
		ActivityKey: "rps", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
}

func TestHandleCreate_RejectsMismatchedCreator(t *testing.T) {
	s, cfg := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "mallory", false), createRequest{
		ActivityKey: "rps", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleCreate_RejectsBadAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/activities/session", "Bearer wrong:alice", createRequest{
		ActivityKey: "rps", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreate_RejectsUnsupportedActivity(t *testing.T) {
	s, cfg := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "alice", false), createRequest{
		ActivityKey: "chess", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJoinAndGet(t *testing.T) {
	s, cfg := newTestServer(t)
	createRec := doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "alice", false), createRequest{
		ActivityKey: "rps", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	var created createResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	joinRec := doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/join", authHeader(cfg.AuthSecret, "alice", false), userIDRequest{UserID: "alice"})
	require.Equal(t, http.StatusAccepted, joinRec.Code)

	getRec := doRequest(t, s, http.MethodGet, "/activities/session/"+created.SessionID, authHeader(cfg.AuthSecret, "alice", false), nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	var view sessionView
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &view))
	require.Equal(t, "lobby", view.Phase)
}

func TestHandleGet_NotFound(t *testing.T) {
	s, cfg := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/activities/session/does-not-exist", authHeader(cfg.AuthSecret, "alice", false), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetRole_GatesStoryCountdown(t *testing.T) {
	s, cfg := newTestServer(t)
	createRec := doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "alice", false), createRequest{
		ActivityKey: "story", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	var created createResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/join", authHeader(cfg.AuthSecret, "alice", false), userIDRequest{UserID: "alice"})
	doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/join", authHeader(cfg.AuthSecret, "bob", false), userIDRequest{UserID: "bob"})
	doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/ready", authHeader(cfg.AuthSecret, "alice", false), readyRequest{UserID: "alice", Ready: boolp(true)})
	doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/ready", authHeader(cfg.AuthSecret, "bob", false), readyRequest{UserID: "bob", Ready: boolp(true)})

	getRec := doRequest(t, s, http.MethodGet, "/activities/session/"+created.SessionID, authHeader(cfg.AuthSecret, "alice", false), nil)
	var view sessionView
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &view))
	require.Equal(t, "lobby", view.Phase)

	rec := doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/role", authHeader(cfg.AuthSecret, "alice", false), roleRequest{UserID: "alice", Role: "boy"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = doRequest(t, s, http.MethodPost, "/activities/session/"+created.SessionID+"/role", authHeader(cfg.AuthSecret, "bob", false), roleRequest{UserID: "bob", Role: "girl"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	getRec = doRequest(t, s, http.MethodGet, "/activities/session/"+created.SessionID, authHeader(cfg.AuthSecret, "alice", false), nil)
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &view))
	require.Equal(t, "countdown", view.Phase)
}

func boolp(b bool) *bool { return &b }

func TestHandleList(t *testing.T) {
	s, cfg := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/activities/session", authHeader(cfg.AuthSecret, "alice", false), createRequest{
		ActivityKey: "rps", CreatorUserID: "alice", Participants: []string{"alice", "bob"},
	})
	rec := doRequest(t, s, http.MethodGet, "/activities/sessions?status=pending", authHeader(cfg.AuthSecret, "alice", false), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
}
