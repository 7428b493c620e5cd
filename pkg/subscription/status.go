package subscription

import (
	"fmt"
	"slices"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus validates a stored or provider-supplied status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusActive, StatusCancelled, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// IsTerminal reports whether the subscription can never become usable again.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// IsBillable reports whether the merchant is being charged and has full access.
func (s Status) IsBillable() bool {
	return s == StatusActive
}

// IsOpen reports whether the row still counts as the merchant's current subscription.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusPending
}

// Transition is a single edge of the lifecycle graph.
type Transition struct {
	From Status
	To   Status
}

var validTransitions = map[Transition]bool{
	{StatusPending, StatusActive}:    true, // merchant approved the charge
	{StatusPending, StatusCancelled}: true, // superseded before approval
	{StatusPending, StatusExpired}:   true, // charge declined or confirmation link expired
	{StatusActive, StatusCancelled}:  true,
	{StatusActive, StatusExpired}:    true,
}

// CanTransition reports whether a subscription may move from one status to another.
// Staying in the same status is always allowed and treated as a no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return validTransitions[Transition{from, to}]
}

// ValidTransitionsFrom returns the statuses reachable from the given one, sorted.
func ValidTransitionsFrom(from Status) []Status {
	targets := make([]Status, 0)
	for t := range validTransitions {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	slices.Sort(targets)
	return targets
}
