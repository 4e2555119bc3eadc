// Package httpapi implements the HTTP surface (spec §6.1): session
// lifecycle commands (create/join/leave/ready/start) and read endpoints,
// layered over internal/coordinator. Routing follows the same
// chi.Router-plus-middleware shape the pack's jxucoder-TeleCoder server
// package uses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crab.casa/activities/internal/config"
	"crab.casa/activities/internal/coordinator"
	"crab.casa/activities/internal/log"
)

// Server wires the coordinator into a chi.Router.
type Server struct {
	coord  *coordinator.Coordinator
	cfg    config.Config
	logger *log.Logger
	router chi.Router
}

// New builds a Server and its router.
func New(coord *coordinator.Coordinator, cfg config.Config, logger *log.Logger) *Server {
	s := &Server{coord: coord, cfg: cfg, logger: logger}
	s.router = s.buildRouter()
	return s
}

// Router returns the handler to mount, shared with internal/wsapi so both
// surfaces run behind one net/http.Server.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/activities", func(r chi.Router) {
		r.Use(withAuth(s.cfg.AuthSecret))
		r.Post("/session", s.handleCreate)
		r.Get("/sessions", s.handleList)
		r.Get("/session/{id}", s.handleGet)
		r.Post("/session/{id}/join", s.handleJoin)
		r.Post("/session/{id}/leave", s.handleLeave)
		r.Post("/session/{id}/ready", s.handleReady)
		r.Post("/session/{id}/role", s.handleSetRole)
		r.Post("/session/{id}/start", s.handleStart)
	})

	return r
}
