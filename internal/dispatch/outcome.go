package dispatch

import (
	"tokenflood/internal/core"
	"tokenflood/internal/workload"
)

// OutcomeKind is how a scheduled unit ended.
type OutcomeKind int

const (
	OutcomeSkipped OutcomeKind = iota
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "skipped"
	}
}

// Outcome is the single accounted result of one scheduled item.
// ID is unique per launched unit and 0 for skipped items.
type Outcome struct {
	ID      uint64
	Index   int
	Kind    OutcomeKind
	Item    workload.Item
	Result  core.CompletionResult
	Failure core.FailureKind
	Message string
}

// ProbeOutcome is the result of one latency probe.
type ProbeOutcome struct {
	ID        uint64
	LatencyMs int
	Err       error
}
