package budget

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenflood/internal/config"
	"tokenflood/internal/schedule"
	"tokenflood/internal/workload"
)

func TestForPhases(t *testing.T) {
	profiles := []workload.LoadProfile{
		{PromptLength: 100, PrefixLength: 10, OutputLength: 5, Weight: 1},
		{PromptLength: 200, PrefixLength: 20, OutputLength: 10, Weight: 3},
	}
	p1, err := schedule.NewPhase(1, 4, profiles)
	require.NoError(t, err)
	p2, err := schedule.NewPhase(2, 4, profiles)
	require.NoError(t, err)

	e, err := ForPhases([]schedule.Phase{p1, p2})
	require.NoError(t, err)

	// 4 requests: 100+200*3; 8 requests: twice that.
	assert.Equal(t, Estimate{InputTokens: 700 * 3, OutputTokens: 35 * 3}, e)
}

func TestForSuite(t *testing.T) {
	s := config.StarterRunSuite()
	s.ApplyDefaults()

	e, err := ForSuite(&s)
	require.NoError(t, err)

	phases, err := s.Phases()
	require.NoError(t, err)
	want, err := ForPhases(phases)
	require.NoError(t, err)
	assert.Equal(t, want, e)
	assert.Positive(t, e.InputTokens)
}

func TestForObservation(t *testing.T) {
	o := config.Observation{
		DurationHours:          1,
		PollingIntervalMinutes: 15,
		NumRequests:            5,
		LoadType:               config.LoadProfile{PromptLength: 300, PrefixLength: 100, OutputLength: 20},
	}

	assert.Equal(t, Estimate{InputTokens: 20 * 300, OutputTokens: 20 * 20}, ForObservation(&o))
}

func TestEstimate_Within(t *testing.T) {
	b := config.Budget{InputTokens: 100, OutputTokens: 10}

	assert.True(t, Estimate{100, 10}.Within(b))
	assert.False(t, Estimate{101, 10}.Within(b))
	assert.False(t, Estimate{100, 11}.Within(b))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    bool
		prompts int
	}{
		{"yes", "y\n", true, 1},
		{"yes word", "  YES \n", true, 1},
		{"no", "n\n", false, 1},
		{"empty means no", "\n", false, 1},
		{"retry then yes", "maybe\nsure\nyes\n", true, 3},
		{"three unknown answers", "a\nb\nc\ny\n", false, 3},
		{"end of input", "", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := Confirm(strings.NewReader(tt.input), &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.prompts, strings.Count(out.String(), "Start the run? [y/N]: "))
		})
	}
}

func TestConfirm_ReadError(t *testing.T) {
	boom := errors.New("tty gone")

	_, err := Confirm(iotest.ErrReader(boom), &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}

func TestGate(t *testing.T) {
	b := config.Budget{InputTokens: 1000, OutputTokens: 100}
	under := Estimate{InputTokens: 500, OutputTokens: 50}
	over := Estimate{InputTokens: 5000, OutputTokens: 50}
	logger := zap.NewNop()

	t.Run("over budget refuses even when accepted", func(t *testing.T) {
		err := Gate(logger, over, b, true, strings.NewReader("y\n"), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrOverBudget)
	})

	t.Run("auto accept skips prompt", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Gate(logger, under, b, true, strings.NewReader(""), &out))
		assert.Empty(t, out.String())
	})

	t.Run("confirmed", func(t *testing.T) {
		assert.NoError(t, Gate(logger, under, b, false, strings.NewReader("yes\n"), &bytes.Buffer{}))
	})

	t.Run("declined", func(t *testing.T) {
		err := Gate(logger, under, b, false, strings.NewReader("no\n"), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrDeclined)
	})
}
