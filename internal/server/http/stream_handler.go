package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobrelay/internal/logging"
	"jobrelay/internal/relay"
)

// StreamHandler serves the long-lived progress stream for one workflow id.
type StreamHandler struct {
	registry *relay.Registry
	timeout  time.Duration
	logger   logging.Logger
}

// NewStreamHandler creates a stream handler over the subscription registry.
// timeout bounds the whole connection; it is generous because the jobs being
// observed are long-running.
func NewStreamHandler(registry *relay.Registry, timeout time.Duration) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		timeout:  timeout,
		logger:   logging.NewComponentLogger("StreamHandler"),
	}
}

// HandleProgressStream handles GET /progress/{workflowId} as an SSE stream.
// Frames are unnamed events (`data: <JSON>`) so a browser EventSource
// receives them through onmessage.
func (h *StreamHandler) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workflowID := strings.TrimPrefix(r.URL.Path, "/progress/")
	if workflowID == "" || strings.Contains(workflowID, "/") {
		http.Error(w, "workflowId required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Progress stream opened for workflow %s", workflowID)

	sub := h.registry.Open(workflowID)
	defer h.registry.Remove(workflowID, sub)

	if err := writeFrame(w, flusher, relay.NewConnectionEvent(workflowID)); err != nil {
		h.logger.Error("Failed to send handshake for workflow %s: %v", workflowID, err)
		return
	}

	timeout := time.NewTimer(h.timeout)
	defer timeout.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				// Closed by replacement, terminal teardown or shutdown.
				h.logger.Info("Progress stream ended for workflow %s", workflowID)
				return
			}
			if err := writeFrame(w, flusher, ev); err != nil {
				h.logger.Warn("Stream write failed for workflow %s: %v", workflowID, err)
				return
			}

		case <-timeout.C:
			// The client runs its own timer; a transport close is all the
			// signal it needs.
			h.logger.Warn("Progress stream timed out for workflow %s after %s", workflowID, h.timeout)
			return

		case <-r.Context().Done():
			h.logger.Info("Client disconnected from workflow %s", workflowID)
			return
		}
	}
}

// writeFrame writes one SSE frame carrying ev as JSON and flushes it.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, ev relay.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
