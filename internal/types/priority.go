package types

import "fmt"

// JudgePriority orders queue task dispatch. Lower values dispatch first.
// The gaps leave room for ad-hoc adjustments without renumbering.
type JudgePriority int

const (
	PriorityHigh    JudgePriority = -10
	PriorityDefault JudgePriority = 0
	PriorityLow     JudgePriority = 99
)

// ParsePriority maps the wire representation onto a JudgePriority. Unknown
// values are a validation error, rejected before any mutation happens.
func ParsePriority(s string) (JudgePriority, error) {
	switch s {
	case "high":
		return PriorityHigh, nil
	case "default", "":
		return PriorityDefault, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityDefault, fmt.Errorf("unknown priority %q", s)
	}
}

func (p JudgePriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityDefault:
		return "default"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}
