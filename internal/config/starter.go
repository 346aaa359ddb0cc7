package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names of the starter specs and of the copies kept in a run folder.
const (
	RunSuiteFile    = "run_suite.yml"
	EndpointFile    = "endpoint_spec.yml"
	ObservationFile = "observation_spec.yml"
)

func intPtr(n int) *int { return &n }

// StarterRunSuite is a small two-rate suite.
func StarterRunSuite() RunSuite {
	s := RunSuite{
		Name:                   "starter",
		RequestsPerSecondRates: []float64{1, 2},
		TestLengthInSeconds:    30,
		LoadTypes: []LoadProfile{
			{PromptLength: 512, PrefixLength: 128, OutputLength: 32, Weight: intPtr(1)},
			{PromptLength: 640, PrefixLength: 568, OutputLength: 12, Weight: intPtr(1)},
		},
		Percentiles: []int{50, 90, 99},
	}
	s.ApplyDefaults()
	return s
}

// StarterEndpoint targets a local vLLM server.
func StarterEndpoint() Endpoint {
	return Endpoint{
		Provider: "hosted_vllm",
		Model:    "HuggingFaceTB/SmolLM-135M-Instruct",
		BaseURL:  "http://127.0.0.1:8000/v1",
	}
}

// StarterObservation polls five requests every 15 minutes for an hour.
func StarterObservation() Observation {
	o := Observation{
		Name:                   "starter",
		DurationHours:          1,
		PollingIntervalMinutes: 15,
		LoadType:               LoadProfile{PromptLength: 512, PrefixLength: 128, OutputLength: 32},
		NumRequests:            5,
		WithinSeconds:          2,
		Percentiles:            []int{50, 90, 99},
	}
	o.ApplyDefaults()
	return o
}

// WriteStarterPack writes the starter specs into dir without overwriting
// existing files. It returns the paths it created.
func WriteStarterPack(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	files := []struct {
		name  string
		value any
	}{
		{RunSuiteFile, StarterRunSuite()},
		{EndpointFile, StarterEndpoint()},
		{ObservationFile, StarterObservation()},
	}
	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			return created, fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return created, fmt.Errorf("checking %s: %w", path, err)
		}
		if err := Save(path, f.value); err != nil {
			return created, err
		}
		created = append(created, path)
	}
	return created, nil
}
