package dispatch

import (
	"fmt"
	"time"

	"github.com/dispatch-tools/consultbot/internal/classify"
)

// State is a task's position in the per-run workflow
type State string

const (
	StatePending     State = "pending"
	StateClassifying State = "classifying"
	StateSummarizing State = "summarizing"
	StateFinalizing  State = "finalizing"

	StateCompleted State = "completed"
	StateNotesOnly State = "notes-only"
	StateSkipped   State = "skipped"
	StateErrored   State = "errored"
)

var stateOrder = map[State]int{
	StatePending:     0,
	StateClassifying: 1,
	StateSummarizing: 2,
	StateFinalizing:  3,
	StateCompleted:   4,
	StateNotesOnly:   4,
	StateSkipped:     4,
	StateErrored:     4,
}

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool { return stateOrder[s] == 4 }

// Task is a consultation task scraped from the dispatch site. It lives only
// for the duration of a run.
type Task struct {
	ID          string // nTaskID, known once the task page is loaded
	URL         string
	Due         time.Time
	Description string
	AssignedTo  string
	Company     string

	Notes        string
	CustomerID   string
	CustomerName string
	Ticket       string

	JobText string
	Label   classify.Label
	State   State

	BillingSubtask bool
	Reason         string // Why the task ended Skipped or Errored
}

// Advance moves the task forward. Backward moves and moves out of a
// terminal state are rejected.
func (t *Task) Advance(to State) error {
	from := t.State
	if from == "" {
		from = StatePending
	}
	if from.Terminal() {
		return fmt.Errorf("task %s: cannot leave terminal state %s", t.Ref(), from)
	}
	if stateOrder[to] <= stateOrder[from] {
		return fmt.Errorf("task %s: invalid transition %s -> %s", t.Ref(), from, to)
	}
	t.State = to
	return nil
}

// Ref identifies the task in log lines before and after its ID is known
func (t *Task) Ref() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Description
}
