package task

import (
	"strings"

	"github.com/loykin/hypercore/internal/rest"
)

// State is a task state as reported by /rest/v1/TaskTag.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateQueued        State = "QUEUED"
	StateRunning       State = "RUNNING"
	StateComplete      State = "COMPLETE"
	StateError         State = "ERROR"
	StateUnknown       State = "UNKNOWN"
)

// ParseState normalizes a raw state string. Unrecognized values map to StateUnknown.
func ParseState(s string) State {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateUninitialized, StateQueued, StateRunning, StateComplete, StateError:
		return st
	default:
		return StateUnknown
	}
}

// Pending reports whether the task may still progress.
func (s State) Pending() bool {
	return s == StateQueued || s == StateRunning
}

// Complete reports whether the task finished successfully.
func (s State) Complete() bool {
	return s == StateComplete
}

// Failed reports whether the task reached a failed state. UNINITIALIZED tasks were
// rejected before they started and never progress.
func (s State) Failed() bool {
	return s == StateError || s == StateUninitialized
}

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s.Complete() || s.Failed()
}

// Status is one observation of a task.
type Status struct {
	TaskTag string
	State   State
	// Progress is the reported percentage, 0 when absent.
	Progress int
	// Record is the raw task object returned by the API.
	Record rest.Record
}
