package api

import (
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.log.Warn("health check database ping failed", "error", err)
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	embedStatus := "ok"
	if s.prober != nil {
		if err := s.prober.Probe(r.Context()); err != nil {
			s.log.Warn("health check embedder probe failed", "error", err)
			embedStatus = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	body := map[string]any{
		"status":          "ok",
		"database":        dbStatus,
		"embedder":        embedStatus,
		"embedding_model": s.embedModel,
		"version":         s.version,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
