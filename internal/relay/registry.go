package relay

import (
	"sort"
	"sync"

	"jobrelay/internal/logging"
)

// subscriptionBuffer sizes the per-subscription event channel. Writes are
// fire-and-forget: a full buffer drops the event rather than blocking ingest.
const subscriptionBuffer = 100

// Subscription is one live outbound stream for a workflow id. The channel is
// closed by the registry when the subscription ends; consumers must treat a
// closed channel as teardown.
type Subscription struct {
	workflowID string
	events     chan ProgressEvent
}

// WorkflowID returns the workflow id this subscription is registered under.
func (s *Subscription) WorkflowID() string {
	return s.workflowID
}

// Events returns the stream of routed events. The channel closes when the
// subscription is removed, replaced, or the registry shuts down.
func (s *Subscription) Events() <-chan ProgressEvent {
	return s.events
}

// Registry associates each workflow id with at most one live subscription.
// A second Open for the same id silently replaces the first.
//
// Locking discipline: sends happen only under the read lock, channel close
// only after removal from the map under the write lock. That makes the races
// between replace, disconnect, timeout and shutdown safe: whichever signal
// fires first wins and the rest become no-ops against a cleared entry.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	metrics *Metrics
	logger  logging.Logger
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithRegistryMetrics overrides the metrics sink, typically with collectors
// bound to a fresh registry in tests.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithRegistryLogger overrides the registry logger.
func WithRegistryLogger(logger logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logging.OrNop(logger)
	}
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		subs:   make(map[string]*Subscription),
		logger: logging.NewComponentLogger("Registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = defaultMetrics()
	}
	return r
}

// Open registers a new subscription for workflowID, replacing and closing any
// prior one (last-registrant-wins).
func (r *Registry) Open(workflowID string) *Subscription {
	sub := &Subscription{
		workflowID: workflowID,
		events:     make(chan ProgressEvent, subscriptionBuffer),
	}

	r.mu.Lock()
	if prev, ok := r.subs[workflowID]; ok {
		delete(r.subs, workflowID)
		close(prev.events)
		r.logger.Warn("Replacing existing subscription for workflow %s", workflowID)
	}
	r.subs[workflowID] = sub
	active := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(active)
	r.logger.Info("Subscription opened for workflow %s (active: %d)", workflowID, active)
	return sub
}

// Remove deregisters sub from workflowID and closes its channel. It is a
// no-op when the entry is already gone or has been replaced by a newer
// subscription, so disconnect, timeout and terminal teardown can all call it.
func (r *Registry) Remove(workflowID string, sub *Subscription) {
	r.mu.Lock()
	current, ok := r.subs[workflowID]
	if !ok || (sub != nil && current != sub) {
		r.mu.Unlock()
		return
	}
	delete(r.subs, workflowID)
	close(current.events)
	active := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(active)
	r.logger.Info("Subscription closed for workflow %s (active: %d)", workflowID, active)
}

// Close tears down whichever subscription currently owns workflowID.
func (r *Registry) Close(workflowID string) {
	r.Remove(workflowID, nil)
}

// deliver pushes ev to the live subscription for workflowID, if any. The
// returned bool reports whether a subscriber was found; a found subscriber
// with a saturated buffer still counts as found, the event is just dropped.
// The receiving subscription is returned so callers can scope later teardown
// to it rather than to whatever owns the id by then.
func (r *Registry) deliver(workflowID string, ev ProgressEvent) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[workflowID]
	if !ok {
		return nil, false
	}

	select {
	case sub.events <- ev:
	default:
		r.metrics.IncDroppedWrite()
		r.logger.Warn("Subscriber buffer full for workflow %s, dropping %s event", workflowID, ev.Type)
	}
	return sub, true
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// ActiveWorkflows returns the workflow ids with a live subscription, sorted
// for stable introspection output.
func (r *Registry) ActiveWorkflows() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Shutdown writes one final error frame to every open subscription, closes
// them all and clears the registry. Best-effort: a saturated buffer skips the
// notice but the close still lands.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	count := len(r.subs)
	for id, sub := range r.subs {
		notice := ProgressEvent{
			Type:       EventError,
			WorkflowID: id,
			Status:     "error",
			Message:    "Service is shutting down",
			Timestamp:  eventTimestamp(),
		}
		select {
		case sub.events <- notice:
		default:
		}
		close(sub.events)
	}
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(0)
	if count > 0 {
		r.logger.Info("Shutdown closed %d subscription(s)", count)
	}
}
