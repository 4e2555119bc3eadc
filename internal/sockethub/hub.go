// Package sockethub implements the Socket Hub component (spec §4.D): a
// registry of live sockets per session, broadcast/targeted send, and
// drop-on-error. Each attached socket gets its own bounded outbound queue
// and writer goroutine so a slow client cannot stall the rest of the
// session's sockets or the coordinator — the same buffered-send-channel
// pattern other_examples' streamspace websocket hub uses, scoped per
// session instead of globally and paired with gorilla/websocket instead of
// a bespoke framer.
package sockethub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"crab.casa/activities/internal/log"
)

const outboundQueueSize = 64

// Socket is one attached websocket connection.
type Socket struct {
	conn      *websocket.Conn
	userID    string
	sessionID string

	send chan []byte
	once sync.Once
	done chan struct{}
}

func newSocket(conn *websocket.Conn, sessionID, userID string) *Socket {
	return &Socket{
		conn:      conn,
		userID:    userID,
		sessionID: sessionID,
		send:      make(chan []byte, outboundQueueSize),
		done:      make(chan struct{}),
	}
}

// UserID is the authenticated user this socket attached as.
func (s *Socket) UserID() string { return s.userID }

// Conn exposes the underlying connection for the read loop owned by
// internal/wsapi.
func (s *Socket) Conn() *websocket.Conn { return s.conn }

// Done is closed once this socket's writer goroutine has exited, either
// because the connection closed or because its outbound queue overflowed.
func (s *Socket) Done() <-chan struct{} { return s.done }

func (s *Socket) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Socket) closeOnce() {
	s.once.Do(func() {
		close(s.send)
	})
}

func (s *Socket) writePump(logger *log.Logger) {
	defer close(s.done)
	defer s.conn.Close()
	for data := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Error("socket write failed, dropping", err)
			return
		}
	}
}

// Hub maintains sessionID -> set<Socket> and sessionID -> (userID -> Socket).
type Hub struct {
	mu       sync.RWMutex
	sockets  map[string]map[*Socket]struct{}
	byUser   map[string]map[string]*Socket
	logger   *log.Logger
}

// New builds an empty Hub.
func New(logger *log.Logger) *Hub {
	return &Hub{
		sockets: make(map[string]map[*Socket]struct{}),
		byUser:  make(map[string]map[string]*Socket),
		logger:  logger,
	}
}

// Attach registers conn under sessionID/userID after the caller has
// already consumed a join permit for that pair, and starts its writer
// goroutine. Returns the Socket handle the caller's read loop should pump
// from.
func (h *Hub) Attach(conn *websocket.Conn, sessionID, userID string) *Socket {
	s := newSocket(conn, sessionID, userID)

	h.mu.Lock()
	if h.sockets[sessionID] == nil {
		h.sockets[sessionID] = make(map[*Socket]struct{})
		h.byUser[sessionID] = make(map[string]*Socket)
	}
	h.sockets[sessionID][s] = struct{}{}
	if prior, ok := h.byUser[sessionID][userID]; ok {
		delete(h.sockets[sessionID], prior)
		prior.closeOnce()
	}
	h.byUser[sessionID][userID] = s
	h.mu.Unlock()

	go s.writePump(h.logger)
	return s
}

// Detach removes s from sessionID's sets. Safe to call more than once.
func (h *Hub) Detach(sessionID string, s *Socket) {
	h.mu.Lock()
	if set, ok := h.sockets[sessionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sockets, sessionID)
		}
	}
	if users, ok := h.byUser[sessionID]; ok {
		if users[s.userID] == s {
			delete(users, s.userID)
		}
		if len(users) == 0 {
			delete(h.byUser, sessionID)
		}
	}
	h.mu.Unlock()
	s.closeOnce()
}

// Publish serializes event and enqueues it on every socket attached to
// sessionID, in the order Publish is called — the coordinator calls
// Publish while holding the session lock, so within one session publishes
// are delivered in that order. A socket whose outbound queue overflows is
// dropped immediately rather than blocking the publisher.
func (h *Hub) Publish(sessionID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event for publish", err)
		return
	}

	h.mu.RLock()
	set := h.sockets[sessionID]
	sockets := make([]*Socket, 0, len(set))
	for s := range set {
		sockets = append(sockets, s)
	}
	h.mu.RUnlock()

	for _, s := range sockets {
		if !s.enqueue(data) {
			h.logger.Warn("dropping slow socket: outbound queue overflow")
			h.Detach(sessionID, s)
		}
	}
}

// SendOne serializes event and enqueues it on s alone, used for the
// initial session.snapshot frame.
func (h *Hub) SendOne(s *Socket, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event for sendOne", err)
		return
	}
	if !s.enqueue(data) {
		h.logger.Warn("dropping slow socket on initial snapshot: outbound queue overflow")
	}
}

// Sockets returns the userIDs currently attached to sessionID, used by the
// coordinator to decide disconnect-triggered leave handling.
func (h *Hub) Sockets(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := h.byUser[sessionID]
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	return out
}
