package status

import (
	"fmt"
	"slices"
)

// Status is the delivery state of a message.
type Status string

const (
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
)

// validTransitions lists the states a recipient may move a message to.
var validTransitions = map[Status][]Status{
	Sent:      {Delivered, Read},
	Delivered: {Read},
	Read:      {},
}

// Parse converts a wire value into a Status.
func Parse(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Rank orders statuses: sent < delivered < read. Unknown values rank -1.
func Rank(s Status) int {
	switch s {
	case Sent:
		return 0
	case Delivered:
		return 1
	case Read:
		return 2
	default:
		return -1
	}
}

// Targetable reports whether s may be requested as a new status at all.
func Targetable(s Status) bool {
	return s == Delivered || s == Read
}

// CanTransition reports whether a message in from may move to to.
// Transitions only go forward, and never back to sent.
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}
