// Package collector summarizes finished phases: outcome tallies, failure
// kinds, HDR latency quantiles and probe latency.
package collector

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
)

// Collector logs a summary line for every finished phase and keeps the
// summaries for the end of the run. It implements dispatch.Observer.
type Collector struct {
	dispatch.NopObserver

	logger      *zap.Logger
	percentiles []int

	mu        sync.Mutex
	summaries []Summary
}

// New creates a Collector reporting the given latency percentiles.
func New(logger *zap.Logger, percentiles []int) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		logger:      logger,
		percentiles: percentiles,
	}
}

func (c *Collector) PhaseFinished(plan dispatch.Plan, res *dispatch.Result) {
	s := Compute(plan, res, c.percentiles)

	c.mu.Lock()
	c.summaries = append(c.summaries, s)
	c.mu.Unlock()

	c.logger.Info("phase summary", summaryFields(s)...)
}

// Summaries returns a copy of the summaries collected so far, in phase order.
func (c *Collector) Summaries() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Summary, len(c.summaries))
	copy(out, c.summaries)
	return out
}

func summaryFields(s Summary) []zap.Field {
	fields := []zap.Field{
		zap.String("group_id", s.GroupID),
		zap.Float64("requests_per_second", s.RequestsPerSecond),
		zap.String("state", s.State),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Float64("error_rate", s.ErrorRate),
		zap.Float64("mean_latency_ms", s.MeanLatencyMs),
	}
	for _, p := range s.Percentiles {
		fields = append(fields, zap.Int64("p"+strconv.Itoa(p.Percent)+"_latency_ms", p.LatencyMs))
	}
	for _, kind := range core.FailureKinds() {
		if n := s.Failures[kind]; n > 0 {
			fields = append(fields, zap.Int(kind.String(), n))
		}
	}
	fields = append(fields,
		zap.Float64("mean_probe_ms", s.MeanProbeMs),
		zap.Int("probe_failures", s.ProbeFailures),
		zap.Duration("elapsed", s.Elapsed),
	)
	return fields
}
