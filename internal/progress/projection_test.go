package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobrelay/internal/relay"
)

func intPtr(n int) *int { return &n }

func TestNewModelHasSingleRunningPlaceholder(t *testing.T) {
	m := NewModel()

	require.Len(t, m.Entries, 1)
	assert.Equal(t, StatusRunning, m.Entries[0].Status)
	assert.Equal(t, 0, m.Percent)
	assert.Equal(t, BannerRunning, m.Banner)
	assert.False(t, m.Done)
}

func TestApplyConnectionIsInvisible(t *testing.T) {
	m := NewModel()
	next := Apply(m, relay.ProgressEvent{Type: relay.EventConnection, WorkflowID: "W1"})

	assert.Equal(t, m.Entries, next.Entries)
	assert.Equal(t, m.Percent, next.Percent)
}

// Mirrors the happy-path scenario: two progress events then completion.
func TestApplyProgressScenario(t *testing.T) {
	m := NewModel()

	m = Apply(m, relay.ProgressEvent{
		Type: relay.EventProgress, Step: "Fetch", Message: "m1", NewMessage: "fetching jobs",
		Status: "running", Progress: intPtr(10),
	})
	// Placeholder closed out with "m1", new running row "Fetch".
	require.Len(t, m.Entries, 2)
	assert.Equal(t, StatusCompleted, m.Entries[0].Status)
	assert.Equal(t, "m1", m.Entries[0].Message)
	assert.Equal(t, "Fetch", m.Entries[1].Step)
	assert.Equal(t, "fetching jobs", m.Entries[1].Message)
	assert.Equal(t, StatusRunning, m.Entries[1].Status)
	assert.Equal(t, 10, m.Percent)

	m = Apply(m, relay.ProgressEvent{
		Type: relay.EventProgress, Step: "Parse", Message: "m2", NewMessage: "parsing results",
		Status: "running", Progress: intPtr(40),
	})
	// "Fetch" retroactively closed out with the incoming message "m2".
	require.Len(t, m.Entries, 3)
	assert.Equal(t, StatusCompleted, m.Entries[1].Status)
	assert.Equal(t, "m2", m.Entries[1].Message)
	assert.Equal(t, "Parse", m.Entries[2].Step)
	assert.Equal(t, StatusRunning, m.Entries[2].Status)
	assert.Equal(t, 40, m.Percent)

	m = Apply(m, relay.ProgressEvent{Type: relay.EventComplete, Message: "done", Status: "completed"})
	// Complete never appends: the running row closes to "done" in place.
	require.Len(t, m.Entries, 3)
	assert.Equal(t, StatusCompleted, m.Entries[2].Status)
	assert.Equal(t, "done", m.Entries[2].Message)
	assert.Equal(t, BannerSuccess, m.Banner)
	assert.True(t, m.Done)
	assert.True(t, m.Dismissable)
	assert.False(t, m.Running())
}

func TestAtMostOneRunningEntry(t *testing.T) {
	m := NewModel()
	steps := []string{"Fetch", "Parse", "Score", "Write"}
	for _, step := range steps {
		m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: step, Status: "running"})

		running := 0
		for _, entry := range m.Entries {
			if entry.Status == StatusRunning {
				running++
			}
		}
		assert.Equal(t, 1, running, "exactly one running entry after each non-terminal event")
	}
	assert.Len(t, m.Entries, len(steps)+1)
}

func TestApplyErrorMutatesRunningRowInPlace(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: "Fetch", NewMessage: "fetching"})

	before := len(m.Entries)
	m = Apply(m, relay.ProgressEvent{Type: relay.EventError, Message: "boom", Status: "error"})

	assert.Len(t, m.Entries, before, "error must not append a row")
	last := m.Entries[len(m.Entries)-1]
	assert.Equal(t, StatusError, last.Status)
	assert.Equal(t, "boom", last.Message)
	assert.Equal(t, BannerFailure, m.Banner)
	assert.True(t, m.Done)
	assert.True(t, m.Dismissable)
}

func TestApplyPercentageRegressionIsPreserved(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: "A", Progress: intPtr(60)})
	m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: "B", Progress: intPtr(30)})

	// Unconditional overwrite: the bar visually regresses.
	assert.Equal(t, 30, m.Percent)
}

func TestApplyUnknownTypeTreatedAsProgress(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: "heartbeat", Step: "X", NewMessage: "working"})

	require.Len(t, m.Entries, 2)
	assert.Equal(t, StatusRunning, m.Entries[1].Status)
}

func TestApplyDefaultsEmptyStepLabel(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, NewMessage: "working"})

	assert.Equal(t, "Step", m.Entries[1].Step)
}

func TestApplyIsPure(t *testing.T) {
	m := NewModel()
	snapshot := append([]Entry(nil), m.Entries...)

	_ = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: "Fetch"})
	_ = Apply(m, relay.ProgressEvent{Type: relay.EventError, Message: "boom"})

	assert.Equal(t, snapshot, m.Entries, "Apply must not mutate its input")
}

func TestDismissResetsEverything(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: relay.EventProgress, Step: "Fetch", Progress: intPtr(80)})
	m = Apply(m, relay.ProgressEvent{Type: relay.EventComplete, Message: "done"})

	reset := Dismiss(m)
	assert.Equal(t, NewModel(), reset)
}

func TestErrorWithoutRunningRowStillFlipsBanner(t *testing.T) {
	m := NewModel()
	m = Apply(m, relay.ProgressEvent{Type: relay.EventComplete, Message: "done"})

	// A late error after completion: no running row to mutate, but the
	// banner still reports failure.
	m = Apply(m, relay.ProgressEvent{Type: relay.EventError, Message: "late boom"})
	assert.Equal(t, BannerFailure, m.Banner)
}
