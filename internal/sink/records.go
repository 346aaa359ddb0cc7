// Package sink writes request, probe and error records.
package sink

import (
	"strconv"
	"time"
)

// DatetimeLayout is the timestamp format used in every record.
const DatetimeLayout = "2006-01-02 15:04:05.000000"

// Column is one named field of a record kind.
type Column[T any] struct {
	Name  string
	Value func(T) string
}

// Schema is the fixed, ordered column list of a record kind.
// New columns are only ever appended.
type Schema[T any] []Column[T]

// Header returns the column names in order.
func (s Schema[T]) Header() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Row renders rec in column order.
func (s Schema[T]) Row(rec T) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Value(rec)
	}
	return out
}

// RequestRecord is one successful completion.
type RequestRecord struct {
	Datetime             time.Time
	RequestsPerSecond    float64
	RequestNumber        int
	Model                string
	LatencyMs            int
	ExpectedInputTokens  int
	MeasuredInputTokens  int
	ExpectedPrefixTokens int
	MeasuredPrefixTokens int
	ExpectedOutputTokens int
	MeasuredOutputTokens int
	GeneratedText        string
	Prompt               string
	GroupID              string
}

// ProbeRecord is one network latency measurement.
type ProbeRecord struct {
	Datetime          time.Time
	EndpointURL       string
	RequestsPerSecond float64
	LatencyMs         int
	GroupID           string
}

// ErrorRecord is one failed request or probe.
type ErrorRecord struct {
	Datetime          time.Time
	RequestsPerSecond float64
	Type              string
	Message           string
	GroupID           string
}

func formatTime(t time.Time) string { return t.Format(DatetimeLayout) }
func formatRate(r float64) string   { return strconv.FormatFloat(r, 'f', -1, 64) }
func formatInt(n int) string        { return strconv.Itoa(n) }

var RequestSchema = Schema[RequestRecord]{
	{"datetime", func(r RequestRecord) string { return formatTime(r.Datetime) }},
	{"requests_per_second_phase", func(r RequestRecord) string { return formatRate(r.RequestsPerSecond) }},
	{"request_number", func(r RequestRecord) string { return formatInt(r.RequestNumber) }},
	{"model", func(r RequestRecord) string { return r.Model }},
	{"latency", func(r RequestRecord) string { return formatInt(r.LatencyMs) }},
	{"expected_input_tokens", func(r RequestRecord) string { return formatInt(r.ExpectedInputTokens) }},
	{"measured_input_tokens", func(r RequestRecord) string { return formatInt(r.MeasuredInputTokens) }},
	{"expected_prefix_tokens", func(r RequestRecord) string { return formatInt(r.ExpectedPrefixTokens) }},
	{"measured_prefix_tokens", func(r RequestRecord) string { return formatInt(r.MeasuredPrefixTokens) }},
	{"expected_output_tokens", func(r RequestRecord) string { return formatInt(r.ExpectedOutputTokens) }},
	{"measured_output_tokens", func(r RequestRecord) string { return formatInt(r.MeasuredOutputTokens) }},
	{"generated_text", func(r RequestRecord) string { return r.GeneratedText }},
	{"prompt", func(r RequestRecord) string { return r.Prompt }},
	{"group_id", func(r RequestRecord) string { return r.GroupID }},
}

var ProbeSchema = Schema[ProbeRecord]{
	{"datetime", func(r ProbeRecord) string { return formatTime(r.Datetime) }},
	{"endpoint_url", func(r ProbeRecord) string { return r.EndpointURL }},
	{"requests_per_second_phase", func(r ProbeRecord) string { return formatRate(r.RequestsPerSecond) }},
	{"latency", func(r ProbeRecord) string { return formatInt(r.LatencyMs) }},
	{"group_id", func(r ProbeRecord) string { return r.GroupID }},
}

var ErrorSchema = Schema[ErrorRecord]{
	{"datetime", func(r ErrorRecord) string { return formatTime(r.Datetime) }},
	{"requests_per_second_phase", func(r ErrorRecord) string { return formatRate(r.RequestsPerSecond) }},
	{"type", func(r ErrorRecord) string { return r.Type }},
	{"message", func(r ErrorRecord) string { return r.Message }},
	{"group_id", func(r ErrorRecord) string { return r.GroupID }},
}
