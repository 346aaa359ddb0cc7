package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"tokenflood/internal/core"
)

// FormatText writes one block per phase in human-readable form.
func FormatText(w io.Writer, summaries []Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No phases ran")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Tokenflood - Phase Results")
	fmt.Fprintln(w, "==========================")
	for _, s := range summaries {
		fmt.Fprintln(w, "")
		fmt.Fprintf(w, "Phase %s (%.2f req/s) %s\n", s.GroupID, s.RequestsPerSecond, s.State)
		fmt.Fprintf(w, "  Duration:   %v\n", s.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(w, "  Requests:   %s ok / %s failed / %s skipped\n",
			formatNumber(s.Succeeded), formatNumber(s.Failed), formatNumber(s.Skipped))
		if failures := formatFailures(s.Failures); failures != "" {
			fmt.Fprintf(w, "  Failures:   %s\n", failures)
		}
		fmt.Fprintf(w, "  Error rate: %.1f%%\n", s.ErrorRate*100)
		fmt.Fprintf(w, "  Tokens:     %s in / %s out\n", formatNumber(s.InputTokens), formatNumber(s.OutputTokens))
		fmt.Fprintf(w, "  Latency:    mean=%s", FormatMillis(s.MeanLatencyMs))
		for _, p := range s.Percentiles {
			fmt.Fprintf(w, "  p%d=%s", p.Percent, FormatMillis(float64(p.LatencyMs)))
		}
		fmt.Fprintln(w, "")
		if s.Probes > 0 {
			fmt.Fprintf(w, "  Network:    mean=%s (%d probes, %d failed)\n",
				FormatMillis(s.MeanProbeMs), s.Probes, s.ProbeFailures)
		}
	}
}

// FormatJSON writes the summaries as an indented JSON array.
func FormatJSON(w io.Writer, summaries []Summary) {
	type jsonSummary struct {
		Summary
		Failures map[string]int `json:"failures"`
		Elapsed  string         `json:"elapsed"`
	}

	out := make([]jsonSummary, 0, len(summaries))
	for _, s := range summaries {
		failures := make(map[string]int, len(s.Failures))
		for kind, n := range s.Failures {
			failures[kind.String()] = n
		}
		out = append(out, jsonSummary{
			Summary:  s,
			Failures: failures,
			Elapsed:  s.Elapsed.Round(time.Millisecond).String(),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(out) // stdout errors are unrecoverable
}

// FormatMillis renders a millisecond figure with a unit suited to its size.
func FormatMillis(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

func formatFailures(failures map[core.FailureKind]int) string {
	var parts []string
	for _, kind := range core.FailureKinds() {
		if n := failures[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	return strings.Join(parts, " ")
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return formatNumber(n/1000) + fmt.Sprintf(",%03d", n%1000)
}
