package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/db"
)

// streamPollInterval is how often the SSE handler re-reads the run. Matches
// the client polling cadence it replaces.
const streamPollInterval = 1500 * time.Millisecond

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends a completion event
func (s *SSEWriter) WriteComplete(runID, status string) {
	s.WriteEvent("complete", map[string]string{ //nolint:errcheck
		"run_id": runID,
		"status": status,
	})
}

// handleAuditStream pushes run progress over SSE instead of requiring the
// client to poll. Emits a progress event on every change and terminates with
// a complete event once the run reaches a terminal status.
func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.URL.Query().Get("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing or invalid run_id")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	lastProgress := -1
	lastStatus := ""
	for {
		resp, err := s.svc.Status(r.Context(), runID)
		if err != nil {
			sse.WriteError(err.Error())
			return
		}

		if resp.Progress != lastProgress || resp.Status != lastStatus {
			lastProgress = resp.Progress
			lastStatus = resp.Status
			if err := sse.WriteEvent("progress", resp); err != nil {
				return
			}
		}

		if db.IsTerminalRunStatus(resp.Status) {
			sse.WriteComplete(runID.String(), resp.Status)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
