// Package wsapi implements the websocket surface (spec §6.2): permit
// verification on upgrade, the initial session.snapshot frame, and the
// inbound submit/keystroke/ping frame dispatch. Read-pump shape is
// grounded on the pack's gorilla/websocket handlers (streamspace,
// chessmata) adapted from their hub-and-spoke fan-out model down to one
// read goroutine per socket feeding straight into the coordinator, which
// already serializes writes per session.
package wsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"crab.casa/activities/internal/apierr"
	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/coordinator"
	"crab.casa/activities/internal/log"
	"crab.casa/activities/internal/sockethub"
	"crab.casa/activities/internal/wire"
)

// Close codes, per spec §6.2: 1008 is the standard RFC 6455 policy
// violation code, the 44xx codes are application-defined.
const (
	closeSessionNotFound = 1008
	closeUnauthorized    = 4401
	closeNotJoined       = 4403
)

// Handler upgrades and serves /activities/session/:id/stream.
type Handler struct {
	coord    *coordinator.Coordinator
	cfg      config.Config
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// New builds a Handler. CheckOrigin is permissive here, matching the
// spec's silence on browser origin policy — a deployment fronting this
// with a reverse proxy is expected to enforce its own origin allowlist.
func New(coord *coordinator.Coordinator, cfg config.Config, logger *log.Logger) *Handler {
	return &Handler{
		coord:  coord,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if _, err := h.coord.Get(sessionID); err != nil {
		h.upgradeAndClose(w, r, closeSessionNotFound, "session_not_found")
		return
	}

	secret, userID, ok := bearerFromQueryOrHeader(r)
	if !ok || secret != h.cfg.AuthSecret || userID == "" {
		h.upgradeAndClose(w, r, closeUnauthorized, "unauthorized")
		return
	}

	if !h.coord.ConsumeJoinPermit(sessionID, userID) {
		h.upgradeAndClose(w, r, closeNotJoined, "not_joined")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", err)
		return
	}

	sock, cleanup := h.coord.AttachSocket(conn, sessionID, userID)
	defer cleanup()

	snapshot, err := h.coord.Snapshot(sessionID)
	if err != nil {
		closeWith(conn, closeSessionNotFound, "session_not_found")
		return
	}
	h.coord.SendSnapshot(sock, snapshot)

	h.readLoop(conn, sock, sessionID, userID)
}

// upgradeAndClose performs the upgrade purely to deliver a framed close
// with the taxonomy's non-standard codes; plain HTTP rejection can't carry
// a close code, and the spec requires one for every rejected attach.
func (h *Handler) upgradeAndClose(w http.ResponseWriter, r *http.Request, code int, text string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	closeWith(conn, code, text)
}

func (h *Handler) readLoop(conn *websocket.Conn, sock *sockethub.Socket, sessionID, userID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wire.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.coord.SendFrame(sock, wire.Event(wire.TypeError, wire.ErrorPayload{Code: string(apierr.CodeBadFormat)}))
			continue
		}
		h.handleFrame(sock, sessionID, userID, frame)
	}
}

// handleFrame dispatches one inbound frame and replies with an ack or
// error, always via the hub's per-socket queue (SendFrame) rather than
// writing the connection directly, since the socket's writePump goroutine
// is also draining published events onto the same connection concurrently.
func (h *Handler) handleFrame(sock *sockethub.Socket, sessionID, userID string, frame wire.InboundFrame) {
	switch frame.Type {
	case wire.TypeSubmit:
		var payload wire.SubmitPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.writeError(sock, apierr.New(apierr.CodeBadFormat))
			return
		}
		if err := h.coord.Submit(sessionID, userID, payload); err != nil {
			h.writeError(sock, err)
			return
		}
		h.coord.SendFrame(sock, wire.Event(wire.TypeAck, wire.AckPayload{Type: frame.Type}))

	case wire.TypeKeystroke:
		var payload wire.KeystrokePayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.writeError(sock, apierr.New(apierr.CodeBadFormat))
			return
		}
		if err := h.coord.Keystroke(sessionID, userID, payload); err != nil {
			h.writeError(sock, err)
			return
		}
		h.coord.SendFrame(sock, wire.Event(wire.TypeAck, wire.AckPayload{Type: frame.Type}))

	case wire.TypePing:
		var payload wire.PingPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			h.writeError(sock, apierr.New(apierr.CodeBadFormat))
			return
		}
		pong, err := h.coord.Ping(sessionID, userID, payload.ClientTimeMs)
		if err != nil {
			h.writeError(sock, err)
			return
		}
		h.coord.SendFrame(sock, wire.Event(wire.TypePong, pong))

	default:
		h.writeError(sock, apierr.New(apierr.CodeBadFormat))
	}
}

func (h *Handler) writeError(sock *sockethub.Socket, err error) {
	ae, ok := err.(*apierr.Error)
	code := apierr.CodeInternalError
	details := ""
	if ok {
		code = ae.Code
		details = ae.Details
	}
	h.coord.SendFrame(sock, wire.Event(wire.TypeError, wire.ErrorPayload{Code: string(code), Details: details}))
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
