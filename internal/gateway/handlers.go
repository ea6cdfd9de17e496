package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tally/internal/event"
	"tally/internal/run"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, `{"error":"q is required"}`, http.StatusBadRequest)
		return
	}

	req := run.Request{
		Query: q,
		Month: r.URL.Query().Get("month"),
		Mode:  r.URL.Query().Get("mode"),
	}

	nd := NewNDJSONWriter(w)
	// One orchestrator per accepted request; a dropped connection cancels
	// its context and nothing else.
	s.orchestrator.Run(r.Context(), req, func(ev event.Event) {
		nd.Write(ev)
	})
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, `{"error":"journal disabled"}`, http.StatusNotFound)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, `{"error":"listing runs failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
