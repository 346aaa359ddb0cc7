// Package config handles the YAML run suite, observation and endpoint specs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"tokenflood/internal/workload"
)

// Default safety limits.
const (
	DefaultErrorRate        = 0.3
	DefaultErrorWindow      = 30
	DefaultErrorMinSamples  = 10
	DefaultInputTokenLimit  = 1_000_000
	DefaultOutputTokenLimit = 10_000
)

// LoadProfile is the YAML form of workload.LoadProfile. Weight defaults to 1.
type LoadProfile struct {
	PromptLength int  `yaml:"prompt_length"`
	PrefixLength int  `yaml:"prefix_length"`
	OutputLength int  `yaml:"output_length"`
	Weight       *int `yaml:"weight,omitempty"`
}

func (p LoadProfile) Profile() workload.LoadProfile {
	weight := 1
	if p.Weight != nil {
		weight = *p.Weight
	}
	return workload.LoadProfile{
		PromptLength: p.PromptLength,
		PrefixLength: p.PrefixLength,
		OutputLength: p.OutputLength,
		Weight:       weight,
	}
}

func profiles(in []LoadProfile) []workload.LoadProfile {
	out := make([]workload.LoadProfile, len(in))
	for i, p := range in {
		out[i] = p.Profile()
	}
	return out
}

// ErrorLimit configures the failure circuit breaker.
type ErrorLimit struct {
	Rate       float64 `yaml:"rate"`
	WindowSize int     `yaml:"window_size"`
	MinSamples int     `yaml:"min_samples"`
}

func (e ErrorLimit) withDefaults() ErrorLimit {
	if e.Rate == 0 {
		e.Rate = DefaultErrorRate
	}
	if e.WindowSize == 0 {
		e.WindowSize = DefaultErrorWindow
	}
	if e.MinSamples == 0 {
		e.MinSamples = min(DefaultErrorMinSamples, e.WindowSize)
	}
	return e
}

func (e ErrorLimit) validate() error {
	var errs []error
	if e.Rate <= 0 || e.Rate > 1 {
		errs = append(errs, fmt.Errorf("error_limit.rate must be in (0, 1], got %v", e.Rate))
	}
	if e.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("error_limit.window_size must be positive, got %d", e.WindowSize))
	}
	if e.MinSamples < 1 || e.MinSamples > e.WindowSize {
		errs = append(errs, fmt.Errorf("error_limit.min_samples must be in [1, window_size], got %d", e.MinSamples))
	}
	return errors.Join(errs...)
}

// Budget caps the total tokens a run may spend.
type Budget struct {
	InputTokens  int `yaml:"input_tokens"`
	OutputTokens int `yaml:"output_tokens"`
}

func (b Budget) withDefaults() Budget {
	if b.InputTokens == 0 {
		b.InputTokens = DefaultInputTokenLimit
	}
	if b.OutputTokens == 0 {
		b.OutputTokens = DefaultOutputTokenLimit
	}
	return b
}

func (b Budget) validate() error {
	var errs []error
	if b.InputTokens < 0 {
		errs = append(errs, fmt.Errorf("budget.input_tokens must be positive, got %d", b.InputTokens))
	}
	if b.OutputTokens < 0 {
		errs = append(errs, fmt.Errorf("budget.output_tokens must be positive, got %d", b.OutputTokens))
	}
	return errors.Join(errs...)
}

// Workload holds the optional task and vocabulary overrides.
type Workload struct {
	Task     string   `yaml:"task,omitempty"`
	TokenSet []string `yaml:"token_set,omitempty"`
}

// Synthesizer builds the prompt synthesizer described by w.
func (w Workload) Synthesizer() (*workload.Synthesizer, error) {
	task := workload.DefaultTask()
	if w.Task != "" {
		var err error
		if task, err = workload.NewTask(w.Task); err != nil {
			return nil, err
		}
	}
	tokens := workload.DefaultTokenSet()
	if len(w.TokenSet) > 0 {
		var err error
		if tokens, err = workload.NewTokenSet(w.TokenSet); err != nil {
			return nil, err
		}
	}
	return workload.NewSynthesizer(tokens, task, nil), nil
}

func (w Workload) validate() error {
	_, err := w.Synthesizer()
	return err
}

func validatePercentiles(ps []int) error {
	for _, p := range ps {
		if p < 1 || p > 100 {
			return fmt.Errorf("percentile %d out of range [1, 100]", p)
		}
	}
	sorted := slices.Clone(ps)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(ps) {
		return errors.New("percentiles must be unique")
	}
	return nil
}

// loadYAML reads path and decodes it strictly into out.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes v as YAML to path.
func Save(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
