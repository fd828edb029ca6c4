// Package progress contains the client-side projection of a relay event
// stream: a pure state machine that folds unordered-looking progress events
// into an append-only log where at most one entry is ever running.
package progress

import "jobrelay/internal/relay"

// Status of one visible log entry.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Banner is the overall outcome shown above the log.
type Banner string

const (
	BannerRunning Banner = "running"
	BannerSuccess Banner = "success"
	BannerFailure Banner = "failure"
)

// Entry is one visible row of the progress log.
type Entry struct {
	Step    string
	Message string
	Status  Status
}

// Model is the complete visible state of the progress view.
type Model struct {
	Entries []Entry
	Percent int
	Banner  Banner
	// Done means a terminal event arrived and the stream should be torn
	// down client-side. Dismissable reveals the dismiss control.
	Done        bool
	Dismissable bool
}

// placeholderStep labels the initial running row shown before any event.
const placeholderStep = "Starting"

/// NewModel returns the initial view state: a single fresh running
// placeholder row, empty bar, running banner.
func NewModel() Model {
	return Model{
		Entries: []Entry{{Step: placeholderStep, Status: StatusRunning}},
		Banner:  BannerRunning,
	}
}

// Dismiss resets all visual state, ready for the next submission. Closing
// the stream, if still open, is the caller's job.
func Dismiss(Model) Model {
	return NewModel()
}

/// Apply folds one stream event into the model. It is pure: the input model
// is never mutated.
func Apply(m Model, ev relay.ProgressEvent) Model {
	next := clone(m)

	switch ev.Type {
	case relay.EventConnection:
		// Handshake only confirms the channel; nothing visible changes.
		return next

	case relay.EventComplete:
		// Never appends a row: the current running entry is closed out in
		// place and the banner flips to success.
		closeOutRunning(&next, ev.Message)
		next.Banner = BannerSuccess
		next.Done = true
		next.Dismissable = true
		applyPercent(&next, ev)
		return next

	case relay.EventError:
		// Mutates the running entry in place rather than appending.
		if last := lastRunning(&next); last != nil {
			last.Message = ev.Message
			last.Status = StatusError
		}
		next.Banner = BannerFailure
		next.Done = true
		next.Dismissable = true
		return next

	default:
		// Progress and any unknown kind: close out the previous step with
		// the incoming message (retroactively narrating what it achieved),
		// then append the new running row.
		closeOutRunning(&next, ev.Message)
		step := ev.Step
		if step == "" {
			step = "Step"
		}
		next.Entries = append(next.Entries, Entry{
			Step:    step,
			Message: ev.NewMessage,
			Status:  StatusRunning,
		})
		applyPercent(&next, ev)
		return next
	}
}

// Running reports whether any entry is still running.
func (m Model) Running() bool {
	for _, entry := range m.Entries {
		if entry.Status == StatusRunning {
			return true
		}
	}
	return false
}

func clone(m Model) Model {
	next := m
	next.Entries = append([]Entry(nil), m.Entries...)
	return next
}

func lastRunning(m *Model) *Entry {
	if len(m.Entries) == 0 {
		return nil
	}
	last := &m.Entries[len(m.Entries)-1]
	if last.Status != StatusRunning {
		return nil
	}
	return last
}

func closeOutRunning(m *Model, message string) {
	if last := lastRunning(m); last != nil {
		last.Status = StatusCompleted
		last.Message = message
	}
}

// applyPercent overwrites the displayed percentage whenever the event
// carries one. Deliberately no monotonicity check: a later smaller value
// regresses the bar, exactly as the producer reported it.
func applyPercent(m *Model, ev relay.ProgressEvent) {
	if ev.Progress != nil {
		m.Percent = *ev.Progress
	}
}
