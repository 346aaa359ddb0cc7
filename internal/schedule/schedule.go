package schedule

import (
	"math/rand"
)

// Schedule is an ordered list of inter-arrival delays in seconds.
type Schedule []float64

// Total returns the sum of all delays.
func (s Schedule) Total() float64 {
	var sum float64
	for _, d := range s {
		sum += d
	}
	return sum
}

// Exponential draws floor(rps*duration) delays from an exponential distribution
// with rate rps and rescales them so they sum to duration. Delays are clamped
// to be non-negative. A nil rng is seeded randomly.
func Exponential(rps, durationSeconds float64, rng *rand.Rand) Schedule {
	n := RequestCount(rps, durationSeconds)
	if n <= 0 || rps <= 0 {
		return Schedule{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	delays := make(Schedule, n)
	var sum float64
	for i := range delays {
		delays[i] = rng.ExpFloat64() / rps
		sum += delays[i]
	}
	if sum <= 0 {
		even := durationSeconds / float64(n)
		for i := range delays {
			delays[i] = even
		}
		return delays
	}
	scale := durationSeconds / sum
	for i := range delays {
		delays[i] = max(0, delays[i]*scale)
	}
	return delays
}

// ForPhase builds the exponential schedule for p.
func ForPhase(p Phase, rng *rand.Rand) Schedule {
	return Exponential(p.RequestsPerSecond, p.DurationSeconds, rng)
}

// Even returns the consecutive differences of n points evenly spaced over
// [0, window]. It is empty for n <= 1.
func Even(n int, windowSeconds float64) Schedule {
	if n <= 1 {
		return Schedule{}
	}
	step := windowSeconds / float64(n-1)
	delays := make(Schedule, n-1)
	prev := 0.0
	for i := 1; i < n; i++ {
		point := windowSeconds
		if i < n-1 {
			point = float64(i) * step
		}
		delays[i-1] = max(0, point-prev)
		prev = point
	}
	return delays
}
