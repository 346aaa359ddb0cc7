// Package ratelimit gates latency probes against the schedule's own clock.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProbeGate allows at most one probe per elapsed second of schedule time.
// Time is passed in explicitly as the elapsed offset from the phase start, so
// the gate behaves the same under real and simulated clocks.
type ProbeGate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	start   time.Time
}

// NewProbeGate creates a gate whose first probe becomes due one second
// after start.
func NewProbeGate(start time.Time) *ProbeGate {
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	limiter.AllowN(start, 1)
	return &ProbeGate{limiter: limiter, start: start}
}

// Allow reports whether a probe may be launched at the given elapsed offset.
func (g *ProbeGate) Allow(elapsed time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter.AllowN(g.start.Add(elapsed), 1)
}
