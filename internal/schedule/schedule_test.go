package schedule

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenflood/internal/workload"
)

var testProfiles = []workload.LoadProfile{
	{PromptLength: 512, PrefixLength: 128, OutputLength: 32, Weight: 1},
}

func TestNewPhase(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		duration float64
		profiles []workload.LoadProfile
		wantErr  error
		wantN    int
	}{
		{"three rps ten seconds", 3, 10, testProfiles, nil, 30},
		{"fractional rate", 0.5, 5, testProfiles, nil, 2},
		{"zero rate", 0, 10, testProfiles, ErrInvalidRate, 0},
		{"negative rate", -1, 10, testProfiles, ErrInvalidRate, 0},
		{"zero duration", 1, 0, testProfiles, ErrInvalidDuration, 0},
		{"too few requests", 0.05, 10, testProfiles, ErrNoRequests, 0},
		{"no profiles", 1, 10, nil, ErrNoProfiles, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPhase(tt.rps, tt.duration, tt.profiles)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantN, p.NumRequests())
		})
	}
}

func TestExponential_SumsToDuration(t *testing.T) {
	tests := []struct {
		rps      float64
		duration float64
		wantN    int
	}{
		{3, 10, 30},
		{2, 400, 800},
		{0.5, 7, 3},
		{1, 1, 1},
		{50, 60, 3000},
	}

	rng := rand.New(rand.NewSource(42))
	for _, tt := range tests {
		s := Exponential(tt.rps, tt.duration, rng)
		require.Len(t, s, tt.wantN)
		assert.InDelta(t, tt.duration, s.Total(), 1e-9)
		for _, d := range s {
			assert.GreaterOrEqual(t, d, 0.0)
		}
	}
}

func TestExponential_Empty(t *testing.T) {
	assert.Empty(t, Exponential(0.01, 10, nil))
	assert.Empty(t, Exponential(0, 10, nil))
}

func TestExponential_Deterministic(t *testing.T) {
	a := Exponential(3, 10, rand.New(rand.NewSource(9)))
	b := Exponential(3, 10, rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)
}

func TestForPhase(t *testing.T) {
	p, err := NewPhase(2, 400, testProfiles)
	require.NoError(t, err)

	s := ForPhase(p, nil)
	assert.Len(t, s, 800)
	assert.InDelta(t, 400.0, s.Total(), 1e-6)
}

func TestEven(t *testing.T) {
	s := Even(5, 1.0)
	require.Len(t, s, 4)
	for _, d := range s {
		assert.InDelta(t, 0.25, d, 1e-12)
	}
	assert.InDelta(t, 1.0, s.Total(), 1e-12)

	assert.Empty(t, Even(1, 1.0))
	assert.Empty(t, Even(0, 1.0))
	assert.Equal(t, Schedule{2}, Even(2, 2))
}
