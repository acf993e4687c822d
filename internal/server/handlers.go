package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSnapshot serves the full cached snapshot. 404 distinguishes "no
// data yet" from a degraded-but-present snapshot, which is served as-is.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.dist.CurrentSnapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, "no data yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "domain")

	snap, ok := s.dist.DomainValue(key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown domain: "+key)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dist.Status())
}

// handleRefresh triggers an immediate fetch-all. Refresh itself never
// fails; the limiter only sheds abusive callers.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refreshLimiter.Allow() {
		s.logger.Debug("refresh rate limited", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded")
		return
	}

	s.dist.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}
