package wsapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
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
	"crab.casa/activities/internal/wire"
)

type stubBank struct{}

func (stubBank) Pick(difficulty string, count int, excludeIDs []string) ([]session.Question, error) {
	qs := make([]session.Question, count)
	for i := range qs {
		qs[i] = session.Question{ID: "q", Options: []string{"a", "b"}, CorrectOption: 0}
	}
	return qs, nil
}

func newTestHandler(t *testing.T) (*Handler, *coordinator.Coordinator, config.Config) {
	t.Helper()
	cfg := config.Load()
	cfg.AuthSecret = "testsecret"
	coord := coordinator.New(store.New(), ratelimit.New(), permit.New(), sockethub.New(log.Default()), activity.NewRegistry(stubBank{}, cfg.Activity), cfg, log.Default(), progression.NewMem())
	sched := clock.NewScheduler(coord.TimerFired)
	coord.AttachScheduler(sched)
	return New(coord, cfg, log.Default()), coord, cfg
}

// TestHandler_SubmitBeforeRunningRepliesWithErrorFrame exercises the error
// reply path end to end over a real websocket connection,
// guarding against the two goroutines (readLoop and the socket's
// writePump) racing on the same connection.
func TestHandler_SubmitBeforeRunningRepliesWithErrorFrame(t *testing.T) {
	h, coord, cfg := newTestHandler(t)
	r := chi.NewRouter()
	r.Get("/activities/session/{id}/stream", h.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	sess, err := coord.Create("alice", "rps", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	_, err = coord.Join(sess.ID, "alice")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/activities/session/" + sess.ID + "/stream?token=" + cfg.AuthSecret + ":alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot wire.OutboundFrame
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, wire.TypeSessionSnapshot, snapshot.Type)

	require.NoError(t, conn.WriteJSON(wire.InboundFrame{Type: wire.TypeSubmit, Payload: []byte(`{"move":"rock"}`)}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply wire.OutboundFrame
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, wire.TypeError, reply.Type)
}
