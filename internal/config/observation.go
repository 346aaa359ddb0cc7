package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"tokenflood/internal/schedule"
	"tokenflood/internal/workload"
)

// Observation polls the endpoint with a small burst at a fixed interval.
type Observation struct {
	Name                   string      `yaml:"name"`
	DurationHours          float64     `yaml:"duration_hours"`
	PollingIntervalMinutes int         `yaml:"polling_interval_minutes"`
	LoadType               LoadProfile `yaml:"load_type"`
	NumRequests            int         `yaml:"num_requests"`
	WithinSeconds          float64     `yaml:"within_seconds"`
	Percentiles            []int       `yaml:"percentiles"`
	Workload               Workload    `yaml:",inline"`
	ErrorLimit             ErrorLimit  `yaml:"error_limit,omitempty"`
	Budget                 Budget      `yaml:"budget,omitempty"`
}

func (o *Observation) ApplyDefaults() {
	o.ErrorLimit = o.ErrorLimit.withDefaults()
	o.Budget = o.Budget.withDefaults()
}

// NumPolls is floor(durationHours*60 / pollingIntervalMinutes).
func (o *Observation) NumPolls() int {
	if o.PollingIntervalMinutes <= 0 {
		return 0
	}
	return int(math.Floor(o.DurationHours * 60 / float64(o.PollingIntervalMinutes)))
}

// TotalRequests is NumRequests for every poll.
func (o *Observation) TotalRequests() int {
	return o.NumRequests * o.NumPolls()
}

// InterPollPause is the sleep between the end of one poll window and the
// start of the next.
func (o *Observation) InterPollPause() time.Duration {
	pause := float64(o.PollingIntervalMinutes)*60 - o.WithinSeconds
	return time.Duration(max(0, pause) * float64(time.Second))
}

// Profile is the single load profile every poll uses.
func (o *Observation) Profile() workload.LoadProfile {
	p := o.LoadType.Profile()
	p.Weight = 1
	return p
}

// Schedule is the even spread of NumRequests over WithinSeconds.
func (o *Observation) Schedule() schedule.Schedule {
	return schedule.Even(o.NumRequests, o.WithinSeconds)
}

func (o *Observation) Validate() error {
	var errs []error
	if o.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if o.DurationHours <= 0 {
		errs = append(errs, fmt.Errorf("duration_hours must be positive, got %v", o.DurationHours))
	}
	if o.PollingIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("polling_interval_minutes must be positive, got %d", o.PollingIntervalMinutes))
	}
	if o.NumRequests < 1 {
		errs = append(errs, fmt.Errorf("num_requests must be positive, got %d", o.NumRequests))
	}
	if o.WithinSeconds < 0 {
		errs = append(errs, fmt.Errorf("within_seconds must not be negative, got %v", o.WithinSeconds))
	}
	if o.PollingIntervalMinutes > 0 && o.WithinSeconds > float64(o.PollingIntervalMinutes)*60 {
		errs = append(errs, fmt.Errorf("within_seconds %v exceeds the polling interval", o.WithinSeconds))
	}
	if err := o.Profile().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("load_type: %w", err))
	}
	if err := validatePercentiles(o.Percentiles); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Workload.validate(), o.ErrorLimit.validate(), o.Budget.validate())
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if o.NumPolls() < 1 {
		return fmt.Errorf("duration of %vh holds no %d minute polling interval", o.DurationHours, o.PollingIntervalMinutes)
	}
	return nil
}

// LoadObservation reads, defaults and validates an observation spec.
func LoadObservation(path string) (*Observation, error) {
	var o Observation
	if err := loadYAML(path, &o); err != nil {
		return nil, err
	}
	o.ApplyDefaults()
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observation spec %s: %w", path, err)
	}
	return &o, nil
}
