package collector

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
)

// maxLatencyMs bounds the histograms; slower values are clamped.
const maxLatencyMs = int64(10 * time.Minute / time.Millisecond)

// DefaultPercentiles are reported when none are configured.
var DefaultPercentiles = []int{50, 90, 99}

// Percentile is one latency quantile of a phase.
type Percentile struct {
	Percent   int   `json:"percent"`
	LatencyMs int64 `json:"latencyMs"`
}

// Summary describes one finished phase.
type Summary struct {
	GroupID           string                   `json:"groupId"`
	RequestsPerSecond float64                  `json:"requestsPerSecond"`
	State             string                   `json:"state"`
	Total             int                      `json:"total"`
	Launched          int                      `json:"launched"`
	Succeeded         int                      `json:"succeeded"`
	Failed            int                      `json:"failed"`
	Skipped           int                      `json:"skipped"`
	Failures          map[core.FailureKind]int `json:"-"`
	ErrorRate         float64                  `json:"errorRate"`
	MeanLatencyMs     float64                  `json:"meanLatencyMs"`
	Percentiles       []Percentile             `json:"percentiles"`
	InputTokens       int                      `json:"inputTokens"`
	OutputTokens      int                      `json:"outputTokens"`
	Probes            int                      `json:"probes"`
	ProbeFailures     int                      `json:"probeFailures"`
	MeanProbeMs       float64                  `json:"meanProbeMs"`
	Elapsed           time.Duration            `json:"-"`
}

// Compute summarizes a dispatch result. Pure function, no side effects.
// Latency figures cover successful requests only.
func Compute(plan dispatch.Plan, res *dispatch.Result, percentiles []int) Summary {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	s := Summary{
		GroupID:           res.GroupID,
		RequestsPerSecond: plan.RequestsPerSecond,
		State:             res.State.String(),
		Total:             len(res.Outcomes),
		Launched:          res.Launched,
		Failures:          make(map[core.FailureKind]int),
		ErrorRate:         res.ErrorRate,
		Elapsed:           res.Elapsed,
	}

	latency := newHistogram()
	for _, o := range res.Outcomes {
		switch o.Kind {
		case dispatch.OutcomeSuccess:
			s.Succeeded++
			s.InputTokens += o.Result.InputTokens
			s.OutputTokens += o.Result.OutputTokens
			record(latency, o.Result.LatencyMs)
		case dispatch.OutcomeFailure:
			s.Failed++
			s.Failures[o.Failure]++
		default:
			s.Skipped++
		}
	}

	probes := newHistogram()
	for _, p := range res.Probes {
		s.Probes++
		if p.Err != nil {
			s.ProbeFailures++
			continue
		}
		record(probes, p.LatencyMs)
	}

	if latency.TotalCount() > 0 {
		s.MeanLatencyMs = latency.Mean()
		for _, pct := range percentiles {
			s.Percentiles = append(s.Percentiles, Percentile{
				Percent:   pct,
				LatencyMs: latency.ValueAtQuantile(float64(pct)),
			})
		}
	}
	if probes.TotalCount() > 0 {
		s.MeanProbeMs = probes.Mean()
	}
	return s
}

func newHistogram() *hdrhistogram.Histogram {
	// 1ms to 10min, 3 significant figures
	return hdrhistogram.New(1, maxLatencyMs, 3)
}

func record(h *hdrhistogram.Histogram, ms int) {
	v := min(max(int64(ms), 0), maxLatencyMs)
	_ = h.RecordValue(v) // in range after clamping
}
