package relay

import (
	"encoding/json"
	"time"

	"jobrelay/internal/logging"
)

// defaultTeardownGrace is how long a terminal event's final write gets to
// flush before the subscription is torn down.
const defaultTeardownGrace = 3 * time.Second

// IngestEvent is a progress callback from the automation engine. Exactly one
// of WorkflowID or ExecutionID must identify a live subscription for the
// event to be routable.
type IngestEvent struct {
	WorkflowID  string          `json:"workflowId,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	Step        string          `json:"step,omitempty"`
	Message     string          `json:"message,omitempty"`
	NewMessage  string          `json:"newMessage,omitempty"`
	Status      string          `json:"status,omitempty"`
	Progress    *int            `json:"progress,omitempty"`
	ErrorBody   json.RawMessage `json:"error_body,omitempty"`
}

// RouteResult is the synchronous acknowledgement of one ingestion. Delivered
// is operational visibility, not a delivery guarantee: the sender must not
// retry on a miss.
type RouteResult struct {
	Delivered         bool
	WorkflowID        string
	ActiveConnections int
}

// Router resolves ingested events to a subscription and forwards them.
// Events that cannot be resolved or have no live subscriber are dropped,
// never buffered or retried.
type Router struct {
	registry *Registry
	index    *ExecutionIndex
	metrics  *Metrics
	logger   logging.Logger
	grace    time.Duration
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithTeardownGrace overrides the delay between a terminal event and the
// subscription teardown it schedules.
func WithTeardownGrace(d time.Duration) RouterOption {
	return func(rt *Router) {
		if d > 0 {
			rt.grace = d
		}
	}
}

// WithRouterMetrics overrides the metrics sink.
func WithRouterMetrics(m *Metrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithRouterLogger overrides the router logger.
func WithRouterLogger(logger logging.Logger) RouterOption {
	return func(rt *Router) {
		rt.logger = logging.OrNop(logger)
	}
}

// NewRouter creates a router over the given registry and execution index.
func NewRouter(registry *Registry, index *ExecutionIndex, opts ...RouterOption) *Router {
	rt := &Router{
		registry: registry,
		index:    index,
		logger:   logging.NewComponentLogger("Router"),
		grace:    defaultTeardownGrace,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.metrics == nil {
		rt.metrics = defaultMetrics()
	}
	return rt
}

// Bind records the engine-assigned execution id for a workflow so later
// events addressed only by execution id can be routed.
func (rt *Router) Bind(executionID, workflowID string) error {
	return rt.index.Bind(executionID, workflowID)
}

// Ingest routes one engine callback to the matching live subscription.
// Terminal events additionally schedule teardown of that subscription after
// the grace delay.
func (rt *Router) Ingest(ev IngestEvent) RouteResult {
	workflowID := ev.WorkflowID
	if workflowID == "" && ev.ExecutionID != "" {
		if resolved, ok := rt.index.Resolve(ev.ExecutionID); ok {
			workflowID = resolved
		}
	}

	result := RouteResult{WorkflowID: workflowID}
	if workflowID == "" {
		rt.metrics.IncRoutingMiss(MissUnresolved)
		rt.logger.Warn("Dropping event with no resolvable workflow id (executionId=%q, step=%q)", ev.ExecutionID, ev.Step)
		result.ActiveConnections = rt.registry.Count()
		return result
	}

	frame := ProgressEvent{
		Type:        ClassifyStatus(ev.Status),
		WorkflowID:  workflowID,
		ExecutionID: ev.ExecutionID,
		Step:        ev.Step,
		Message:     ev.Message,
		NewMessage:  ev.NewMessage,
		Status:      ev.Status,
		Progress:    ev.Progress,
		ErrorBody:   ev.ErrorBody,
		Timestamp:   eventTimestamp(),
	}

	sub, found := rt.registry.deliver(workflowID, frame)
	if !found {
		rt.metrics.IncRoutingMiss(MissNoSubscriber)
		rt.logger.Warn("No subscriber for workflow %s, dropping %s event (step=%q)", workflowID, frame.Type, ev.Step)
		result.ActiveConnections = rt.registry.Count()
		return result
	}

	rt.metrics.IncRouted(string(frame.Type))
	rt.logger.Debug("Routed %s event to workflow %s (step=%q)", frame.Type, workflowID, ev.Step)

	if frame.Type.Terminal() {
		// Let the final write flush to the client before the transport
		// closes. Teardown is scoped to the subscription that received the
		// frame so a replacement opened inside the grace window survives.
		id := workflowID
		time.AfterFunc(rt.grace, func() {
			rt.registry.Remove(id, sub)
		})
	}

	result.Delivered = true
	result.ActiveConnections = rt.registry.Count()
	return result
}
