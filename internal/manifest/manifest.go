package manifest

import "novafreight-system/internal/platform/apierr"

// Status is the physical loading lifecycle of a manifest entry. Transitions
// only move forward, one step at a time; UNLOADED is terminal. Skipping a
// step would bypass the validation recorded at each stage.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusLoaded    Status = "LOADED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusUnloaded  Status = "UNLOADED"
)

var next = map[Status]Status{
	StatusPending:   StatusLoaded,
	StatusLoaded:    StatusInTransit,
	StatusInTransit: StatusUnloaded,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusLoaded, StatusInTransit, StatusUnloaded:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusUnloaded
}

// CanTransitionTo reports whether target is the single allowed next status.
func (s Status) CanTransitionTo(target Status) bool {
	n, ok := next[s]
	return ok && n == target
}

// Transition validates a requested status change and returns the new status,
// or INVALID_TRANSITION.
func Transition(current, target Status) (Status, error) {
	if !target.Valid() {
		return current, apierr.InvalidArgument("unknown manifest status " + string(target))
	}
	if !current.CanTransitionTo(target) {
		return current, apierr.InvalidTransition(string(current), string(target))
	}
	return target, nil
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
