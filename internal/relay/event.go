package relay

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType identifies the kind of frame pushed to a progress stream.
type EventType string

const (
	// EventConnection is the handshake frame sent once when a stream opens.
	EventConnection EventType = "connection"
	// EventProgress is a non-terminal status update.
	EventProgress EventType = "progress"
	// EventComplete marks the workflow as finished successfully.
	EventComplete EventType = "complete"
	// EventError marks the workflow as failed.
	EventError EventType = "error"
)

// Terminal reports whether the event type ends a subscription.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// ProgressEvent is the single frame shape shared by the ingest API, the SSE
// stream and the watch client. Message carries the retroactive close-out text
// for the previous step; NewMessage is the text of the step now starting.
type ProgressEvent struct {
	Type        EventType       `json:"type"`
	WorkflowID  string          `json:"workflowId,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	Step        string          `json:"step,omitempty"`
	Message     string          `json:"message,omitempty"`
	NewMessage  string          `json:"newMessage,omitempty"`
	Status      string          `json:"status,omitempty"`
	Progress    *int            `json:"progress,omitempty"`
	ErrorBody   json.RawMessage `json:"error_body,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// NewConnectionEvent builds the handshake frame sent when a stream opens,
// letting the client confirm the channel is live before triggering the job.
func NewConnectionEvent(workflowID string) ProgressEvent {
	return ProgressEvent{
		Type:       EventConnection,
		WorkflowID: workflowID,
		Message:    "Progress stream connected",
		Timestamp:  eventTimestamp(),
	}
}

// ClassifyStatus maps an engine-reported status to the stream event type.
// Anything that is not explicitly terminal is treated as progress.
func ClassifyStatus(status string) EventType {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return EventComplete
	case "error":
		return EventError
	default:
		return EventProgress
	}
}

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
