package config

import (
	"errors"
	"fmt"
	"slices"

	"tokenflood/internal/schedule"
	"tokenflood/internal/workload"
)

// RunSuite sweeps a set of request rates, each held for the same duration.
type RunSuite struct {
	Name                   string        `yaml:"name"`
	RequestsPerSecondRates []float64     `yaml:"requests_per_second_rates"`
	TestLengthInSeconds    int           `yaml:"test_length_in_seconds"`
	LoadTypes              []LoadProfile `yaml:"load_types"`
	Percentiles            []int         `yaml:"percentiles"`
	Workload               Workload      `yaml:",inline"`
	ErrorLimit             ErrorLimit    `yaml:"error_limit,omitempty"`
	Budget                 Budget        `yaml:"budget,omitempty"`
}

// ApplyDefaults fills in the unset safety limits.
func (s *RunSuite) ApplyDefaults() {
	s.ErrorLimit = s.ErrorLimit.withDefaults()
	s.Budget = s.Budget.withDefaults()
}

func (s *RunSuite) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.RequestsPerSecondRates) == 0 {
		errs = append(errs, errors.New("requests_per_second_rates must not be empty"))
	}
	if s.TestLengthInSeconds <= 0 {
		errs = append(errs, fmt.Errorf("test_length_in_seconds must be positive, got %d", s.TestLengthInSeconds))
	}
	if err := workload.ValidateProfiles(s.Profiles()); err != nil {
		errs = append(errs, fmt.Errorf("load_types: %w", err))
	}
	if err := validatePercentiles(s.Percentiles); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.Workload.validate(), s.ErrorLimit.validate(), s.Budget.validate())
	if err := errors.Join(errs...); err != nil {
		return err
	}
	_, err := s.Phases()
	return err
}

// Profiles converts the load types.
func (s *RunSuite) Profiles() []workload.LoadProfile {
	return profiles(s.LoadTypes)
}

// Phases builds one phase per rate, in ascending rate order.
func (s *RunSuite) Phases() ([]schedule.Phase, error) {
	rates := slices.Clone(s.RequestsPerSecondRates)
	slices.Sort(rates)
	phases := make([]schedule.Phase, 0, len(rates))
	var errs []error
	for _, rps := range rates {
		p, err := schedule.NewPhase(rps, float64(s.TestLengthInSeconds), s.Profiles())
		if err != nil {
			errs = append(errs, fmt.Errorf("rate %v: %w", rps, err))
			continue
		}
		phases = append(phases, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return phases, nil
}

// LoadRunSuite reads, defaults and validates a run suite.
func LoadRunSuite(path string) (*RunSuite, error) {
	var s RunSuite
	if err := loadYAML(path, &s); err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run suite %s: %w", path, err)
	}
	return &s, nil
}
