// Package schedule derives request counts and inter-arrival delays for a phase.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"tokenflood/internal/workload"
)

var (
	ErrInvalidRate     = errors.New("requests per second must be positive")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrNoRequests      = errors.New("phase would contain zero requests")
	ErrNoProfiles      = workload.ErrNoProfiles
)

// Phase is one target rate held for a fixed duration.
type Phase struct {
	RequestsPerSecond float64
	DurationSeconds   float64
	Profiles          []workload.LoadProfile
}

// NewPhase validates the rate, duration and profiles and rejects phases whose
// derived request count floor(rps*duration) is zero.
func NewPhase(rps, durationSeconds float64, profiles []workload.LoadProfile) (Phase, error) {
	if !(rps > 0) || math.IsInf(rps, 0) {
		return Phase{}, fmt.Errorf("%w: %v", ErrInvalidRate, rps)
	}
	if !(durationSeconds > 0) || math.IsInf(durationSeconds, 0) {
		return Phase{}, fmt.Errorf("%w: %v", ErrInvalidDuration, durationSeconds)
	}
	if err := workload.ValidateProfiles(profiles); err != nil {
		return Phase{}, err
	}
	if RequestCount(rps, durationSeconds) < 1 {
		return Phase{}, fmt.Errorf("%w: %v rps for %vs", ErrNoRequests, rps, durationSeconds)
	}
	return Phase{
		RequestsPerSecond: rps,
		DurationSeconds:   durationSeconds,
		Profiles:          profiles,
	}, nil
}

// NumRequests is floor(rps * duration).
func (p Phase) NumRequests() int {
	return RequestCount(p.RequestsPerSecond, p.DurationSeconds)
}

// RequestCount is floor(rps * duration).
func RequestCount(rps, durationSeconds float64) int {
	return int(math.Floor(rps * durationSeconds))
}
