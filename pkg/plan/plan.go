package plan

import (
	"fmt"
	"strings"
)

// Type identifies a subscription tier.
type Type string

const (
	Free    Type = "free"
	Starter Type = "starter"
	Creator Type = "creator"
)

// order is the total tier order, lowest first.
var order = []Type{Free, Starter, Creator}

// All returns every plan type in tier order.
func All() []Type {
	out := make([]Type, len(order))
	copy(out, order)
	return out
}

// Parse validates a raw plan identifier at the system boundary.
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known tiers.
func (t Type) Valid() bool {
	return t.Rank() >= 0
}

// Rank returns the position of t in the tier order, or -1 for unknown types.
func (t Type) Rank() int {
	for i, p := range order {
		if p == t {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// DisplayName returns the merchant-facing name of the tier.
func (t Type) DisplayName() string {
	switch t {
	case Free:
		return "Free"
	case Starter:
		return "Starter"
	case Creator:
		return "Creator"
	default:
		return "Unknown"
	}
}

// IsUpgrade reports whether moving from one tier to another goes up the order.
// Unknown types are never an upgrade.
func IsUpgrade(from, to Type) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() > from.Rank()
}

// IsDowngrade reports whether moving from one tier to another goes down the order.
func IsDowngrade(from, to Type) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() < from.Rank()
}
