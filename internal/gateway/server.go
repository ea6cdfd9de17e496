package gateway

import (
	"net/http"

	"tally/internal/journal"
	"tally/internal/run"
)

type Server struct {
	orchestrator *run.Orchestrator
	journal      *journal.Store
	mux          *http.ServeMux
}

func NewServer(orchestrator *run.Orchestrator, j *journal.Store) *Server {
	s := &Server{
		orchestrator: orchestrator,
		journal:      j,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /v1/agent/stream", s.handleStream)
	s.mux.HandleFunc("GET /v1/runs/recent", s.handleRecentRuns)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}
