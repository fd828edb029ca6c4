package relay

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, opts ...RouterOption) (*Router, *Registry) {
	t.Helper()
	metrics := MustNewMetrics(prometheus.NewRegistry())
	registry := NewRegistry(WithRegistryMetrics(metrics))
	opts = append([]RouterOption{WithRouterMetrics(metrics)}, opts...)
	return NewRouter(registry, NewExecutionIndex(), opts...), registry
}

func TestRouterIngestByWorkflowID(t *testing.T) {
	router, registry := newTestRouter(t)
	sub := registry.Open("W1")

	progress := 10
	result := router.Ingest(IngestEvent{
		WorkflowID: "W1",
		Step:       "Fetch",
		Message:    "m1",
		NewMessage: "fetching",
		Status:     "running",
		Progress:   &progress,
	})

	require.True(t, result.Delivered)
	assert.Equal(t, "W1", result.WorkflowID)
	assert.Equal(t, 1, result.ActiveConnections)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventProgress, ev.Type)
		assert.Equal(t, "Fetch", ev.Step)
		assert.Equal(t, "m1", ev.Message)
		assert.Equal(t, "fetching", ev.NewMessage)
		require.NotNil(t, ev.Progress)
		assert.Equal(t, 10, *ev.Progress)
		assert.NotEmpty(t, ev.Timestamp)
	default:
		t.Fatal("Expected event in subscription channel")
	}
}

func TestRouterIngestByExecutionID(t *testing.T) {
	router, registry := newTestRouter(t)
	sub := registry.Open("W1")

	require.NoError(t, router.Bind("E1", "W1"))

	result := router.Ingest(IngestEvent{ExecutionID: "E1", Step: "Parse", Status: "running"})
	require.True(t, result.Delivered)
	assert.Equal(t, "W1", result.WorkflowID)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "W1", ev.WorkflowID)
		assert.Equal(t, "Parse", ev.Step)
	default:
		t.Fatal("Expected event routed via execution id binding")
	}
}

func TestRouterIngestUnresolvable(t *testing.T) {
	router, _ := newTestRouter(t)

	// No binding, no workflow id: acknowledged drop, never an error.
	result := router.Ingest(IngestEvent{ExecutionID: "E-unknown", Status: "running"})
	assert.False(t, result.Delivered)
	assert.Empty(t, result.WorkflowID)
	assert.Equal(t, 0, result.ActiveConnections)

	// Resolvable id but nobody subscribed: same contract.
	require.NoError(t, router.Bind("E1", "W1"))
	result = router.Ingest(IngestEvent{ExecutionID: "E1", Status: "error", Message: "boom"})
	assert.False(t, result.Delivered)
	assert.Equal(t, "W1", result.WorkflowID)
}

func TestRouterIngestEmptyEvent(t *testing.T) {
	router, _ := newTestRouter(t)

	result := router.Ingest(IngestEvent{})
	assert.False(t, result.Delivered)
}

func TestRouterTerminalEventSchedulesTeardown(t *testing.T) {
	router, registry := newTestRouter(t, WithTeardownGrace(20*time.Millisecond))
	sub := registry.Open("W1")

	result := router.Ingest(IngestEvent{WorkflowID: "W1", Status: "completed", Message: "done"})
	require.True(t, result.Delivered)

	// The terminal frame arrives before teardown.
	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventComplete, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("Expected terminal frame before teardown")
	}

	// After the grace delay the subscription is gone and its channel closed.
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "Expected channel close after grace delay")
	case <-time.After(time.Second):
		t.Fatal("Expected subscription teardown after grace delay")
	}
	assert.Equal(t, 0, registry.Count())
}

func TestRouterTeardownSkipsReplacementSubscription(t *testing.T) {
	router, registry := newTestRouter(t, WithTeardownGrace(20*time.Millisecond))
	registry.Open("W1")

	router.Ingest(IngestEvent{WorkflowID: "W1", Status: "error", Message: "boom"})

	// Re-subscribe inside the grace window. The delayed teardown is scoped
	// to the subscription that received the terminal frame, so the
	// replacement must survive the timer firing.
	replacement := registry.Open("W1")
	time.Sleep(60 * time.Millisecond)

	select {
	case _, ok := <-replacement.Events():
		if !ok {
			t.Fatal("Replacement subscription must not be closed by the earlier teardown")
		}
	default:
	}
	assert.Equal(t, 1, registry.Count())
}
