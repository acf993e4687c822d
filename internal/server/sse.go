package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// Buffered frames per SSE client; a slow browser drops frames instead of
// stalling the broadcast.
const sseClientBuffer = 10

// handleEvents streams every accepted snapshot to the connected browser.
// Each connection is one subscriber of the distribution service: an
// initial snapshot event on connect, then one event per accepted update.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	dataCh := make(chan snapshot.Snapshot, sseClientBuffer)
	subID := s.dist.Subscribe("sse:"+r.RemoteAddr, func(snap snapshot.Snapshot) {
		select {
		case dataCh <- snap:
		default:
			// Channel full, client is slow
		}
	})
	defer s.dist.Unsubscribe(subID)

	s.logger.Info("sse client connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("subscription", subID),
	)

	// Send current state immediately so the view renders on mount.
	if snap := s.dist.CurrentSnapshot(); snap != nil {
		if err := writeEvent(w, flusher, "snapshot", snap); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case snap := <-dataCh:
			if err := writeEvent(w, flusher, "snapshot", snap); err != nil {
				s.logger.Debug("sse write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
