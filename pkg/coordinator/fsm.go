package coordinator

import "fmt"

// State is a phase of one settings write.
type State string

const (
	StateIdle             State = "IDLE"
	StateSubmitting       State = "SUBMITTING"
	StateConflictRetrying State = "CONFLICT_RETRYING"
	StateSuccess          State = "SUCCESS"
	StateFailed           State = "FAILED"
)

// Terminal reports whether s ends a write.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Event drives the state machine.
type Event string

const (
	EventSubmit    Event = "submit"
	EventSucceeded Event = "succeeded"
	EventConflict  Event = "conflict"
	EventRefetched Event = "refetched"
	EventFailed    Event = "failed"
)

// MaxAttempts bounds submissions per write: the first try plus one retry
// after a version conflict.
const MaxAttempts = 2

// Status is the machine position: the state plus the number of submissions
// made so far.
type Status struct {
	State   State `json:"state"`
	Attempt int   `json:"attempt"`
}

// ErrInvalidTransition is returned for events a state does not accept.
type ErrInvalidTransition struct {
	From  Status
	Event Event
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("coordinator: event %q not allowed in %s (attempt %d)", e.Event, e.From.State, e.From.Attempt)
}

// Transition is the pure transition function of the write state machine.
//
//	IDLE --submit--> SUBMITTING(1)
//	SUBMITTING --succeeded--> SUCCESS
//	SUBMITTING(1) --conflict--> CONFLICT_RETRYING
//	SUBMITTING(2) --conflict--> FAILED
//	SUBMITTING --failed--> FAILED
//	CONFLICT_RETRYING --refetched--> SUBMITTING(2)
//	CONFLICT_RETRYING --failed--> FAILED
//	SUCCESS|FAILED --submit--> SUBMITTING(1)
func Transition(from Status, event Event) (Status, error) {
	switch from.State {
	case StateIdle, StateSuccess, StateFailed:
		if event == EventSubmit {
			return Status{State: StateSubmitting, Attempt: 1}, nil
		}
	case StateSubmitting:
		switch event {
		case EventSucceeded:
			return Status{State: StateSuccess, Attempt: from.Attempt}, nil
		case EventFailed:
			return Status{State: StateFailed, Attempt: from.Attempt}, nil
		case EventConflict:
			if from.Attempt < MaxAttempts {
				return Status{State: StateConflictRetrying, Attempt: from.Attempt}, nil
			}
			return Status{State: StateFailed, Attempt: from.Attempt}, nil
		}
	case StateConflictRetrying:
		switch event {
		case EventRefetched:
			return Status{State: StateSubmitting, Attempt: from.Attempt + 1}, nil
		case EventFailed:
			return Status{State: StateFailed, Attempt: from.Attempt}, nil
		}
	}
	return from, ErrInvalidTransition{From: from, Event: event}
}
