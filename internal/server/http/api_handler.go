package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"jobrelay/internal/logging"
	"jobrelay/internal/relay"
)

const maxBodySize = 1 << 20 // 1 MiB

// APIHandler handles the relay's JSON endpoints: execution binding, progress
// ingestion, health and connection introspection.
type APIHandler struct {
	router    *relay.Router
	registry  *relay.Registry
	logger    logging.Logger
	startTime time.Time
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(router *relay.Router, registry *relay.Registry) *APIHandler {
	return &APIHandler{
		router:    router,
		registry:  registry,
		logger:    logging.NewComponentLogger("APIHandler"),
		startTime: time.Now(),
	}
}

// RegisterExecutionRequest is the bind call payload from the browser client.
type RegisterExecutionRequest struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
}

// HandleRegisterExecution handles POST /api/register-execution.
func (h *APIHandler) HandleRegisterExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterExecutionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.router.Bind(req.ExecutionID, req.WorkflowID); err != nil {
		if errors.Is(err, relay.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "executionId and workflowId are required",
			})
			return
		}
		h.logger.Error("Bind failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to register execution",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// IngestResponse acknowledges a progress callback. The call always succeeds
// at the HTTP level; routing failure is visible only through received event
// accounting, so the engine never retries on a miss.
type IngestResponse struct {
	Received          bool   `json:"received"`
	ActiveConnections int    `json:"activeConnections"`
	Timestamp         string `json:"timestamp"`
	WorkflowID        string `json:"workflowId,omitempty"`
}

// HandleProgressUpdate handles POST /api/progress-update, the engine-facing
// ingest endpoint.
func (h *APIHandler) HandleProgressUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev relay.IngestEvent
	if !decodeJSONBody(w, r, &ev) {
		return
	}

	result := h.router.Ingest(ev)

	writeJSON(w, http.StatusOK, IngestResponse{
		Received:          true,
		ActiveConnections: result.ActiveConnections,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		WorkflowID:        result.WorkflowID,
	})
}

// HandleHealthCheck handles GET /health.
func (h *APIHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"uptime":            time.Since(h.startTime).String(),
		"activeConnections": h.registry.Count(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleConnections handles GET /api/connections, reporting the live
// workflow ids. Operational visibility only, not part of the routing
// contract.
func (h *APIHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":       h.registry.Count(),
		"workflowIds": h.registry.ActiveWorkflows(),
	})
}

// decodeJSONBody decodes a bounded JSON body into dst, writing a 4xx and
// returning false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
