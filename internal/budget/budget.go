// Package budget estimates the tokens a run will spend and gates the run on
// a configured budget and an interactive confirmation.
package budget

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"tokenflood/internal/config"
	"tokenflood/internal/schedule"
	"tokenflood/internal/workload"
)

var (
	ErrOverBudget = errors.New("estimated tokens exceed the configured budget")
	ErrDeclined   = errors.New("run not confirmed")
)

// MaxPromptTrials is how many unrecognized answers Confirm accepts before
// treating the run as declined.
const MaxPromptTrials = 3

var (
	yesAnswers = []string{"y", "yes"}
	noAnswers  = []string{"n", "no", ""}
)

// Estimate is the expected token spend of a run.
type Estimate struct {
	InputTokens  int
	OutputTokens int
}

func (e Estimate) add(p workload.LoadProfile) Estimate {
	e.InputTokens += p.PromptLength
	e.OutputTokens += p.OutputLength
	return e
}

// Within reports whether both figures are at or under the budget.
func (e Estimate) Within(b config.Budget) bool {
	return e.InputTokens <= b.InputTokens && e.OutputTokens <= b.OutputTokens
}

// ForPhases sums the sampled prompt and output lengths of every phase.
func ForPhases(phases []schedule.Phase) (Estimate, error) {
	var e Estimate
	for _, p := range phases {
		sampled, err := workload.Sample(p.Profiles, p.NumRequests())
		if err != nil {
			return Estimate{}, err
		}
		for _, lp := range sampled {
			e = e.add(lp)
		}
	}
	return e, nil
}

// ForSuite estimates a run suite.
func ForSuite(s *config.RunSuite) (Estimate, error) {
	phases, err := s.Phases()
	if err != nil {
		return Estimate{}, err
	}
	return ForPhases(phases)
}

// ForObservation estimates every poll of an observation.
func ForObservation(o *config.Observation) Estimate {
	p := o.Profile()
	n := o.TotalRequests()
	return Estimate{
		InputTokens:  n * p.PromptLength,
		OutputTokens: n * p.OutputLength,
	}
}

// Gate logs the estimate against the budget and decides whether the run may
// start. Over budget always refuses. Otherwise autoAccept skips the prompt.
func Gate(logger *zap.Logger, e Estimate, b config.Budget, autoAccept bool, in io.Reader, out io.Writer) error {
	logger.Info("estimated token usage",
		zap.Int("input_tokens", e.InputTokens),
		zap.Int("input_token_budget", b.InputTokens),
		zap.Int("output_tokens", e.OutputTokens),
		zap.Int("output_token_budget", b.OutputTokens),
	)
	if !e.Within(b) {
		logger.Error("estimated tokens beyond the configured budget, raise budget.input_tokens and budget.output_tokens to run")
		return fmt.Errorf("%w: %d/%d input, %d/%d output",
			ErrOverBudget, e.InputTokens, b.InputTokens, e.OutputTokens, b.OutputTokens)
	}
	if autoAccept {
		logger.Info("token usage auto-accepted")
		return nil
	}
	ok, err := Confirm(in, out)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// Confirm asks "Start the run? [y/N]: " until it reads a yes or no answer,
// at most MaxPromptTrials times. An empty answer or end of input means no.
func Confirm(in io.Reader, out io.Writer) (bool, error) {
	scanner := bufio.NewScanner(in)
	for range MaxPromptTrials {
		if _, err := fmt.Fprint(out, "Start the run? [y/N]: "); err != nil {
			return false, err
		}
		if !scanner.Scan() {
			return false, scanner.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if slices.Contains(yesAnswers, answer) {
			return true, nil
		}
		if slices.Contains(noAnswers, answer) {
			return false, nil
		}
	}
	return false, nil
}
