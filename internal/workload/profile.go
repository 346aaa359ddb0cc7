// Package workload builds synthetic prompts sized to load profiles.
package workload

import (
	"errors"
	"fmt"
)

var (
	ErrNoProfiles      = errors.New("at least one load profile is required")
	ErrZeroTotalWeight = errors.New("total load profile weight must be positive")
)

// LoadProfile describes one request shape in tokens.
type LoadProfile struct {
	PromptLength int
	PrefixLength int
	OutputLength int
	Weight       int
}

// Validate checks the length and weight constraints of a single profile.
func (p LoadProfile) Validate() error {
	var errs []error
	if p.PromptLength <= 0 {
		errs = append(errs, fmt.Errorf("prompt length must be positive, got %d", p.PromptLength))
	}
	if p.PrefixLength < 0 {
		errs = append(errs, fmt.Errorf("prefix length must not be negative, got %d", p.PrefixLength))
	}
	if p.PrefixLength > p.PromptLength {
		errs = append(errs, fmt.Errorf("prefix length %d exceeds prompt length %d", p.PrefixLength, p.PromptLength))
	}
	if p.OutputLength <= 0 {
		errs = append(errs, fmt.Errorf("output length must be positive, got %d", p.OutputLength))
	}
	if p.Weight < 0 {
		errs = append(errs, fmt.Errorf("weight must not be negative, got %d", p.Weight))
	}
	return errors.Join(errs...)
}

// ValidateProfiles checks every profile and the pool as a whole.
func ValidateProfiles(profiles []LoadProfile) error {
	if len(profiles) == 0 {
		return ErrNoProfiles
	}
	var errs []error
	total := 0
	for i, p := range profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("load profile %d: %w", i, err))
		}
		total += p.Weight
	}
	if len(errs) == 0 && total == 0 {
		errs = append(errs, ErrZeroTotalWeight)
	}
	return errors.Join(errs...)
}

// Sample returns n profiles in proportion to their weights.
// Each profile is repeated Weight times into a pool that is cycled until it
// holds at least n entries and then truncated to n.
func Sample(profiles []LoadProfile, n int) ([]LoadProfile, error) {
	if err := ValidateProfiles(profiles); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	var pool []LoadProfile
	for _, p := range profiles {
		for range p.Weight {
			pool = append(pool, p)
		}
	}
	out := make([]LoadProfile, n)
	for i := range out {
		out[i] = pool[i%len(pool)]
	}
	return out, nil
}
