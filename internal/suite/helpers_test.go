package suite

import (
	"context"
	"sync"
	"time"

	"tokenflood/internal/config"
	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeCompleter struct {
	warmupErr error
	fn        func(req core.CompletionRequest) (core.CompletionResult, error)

	mu       sync.Mutex
	warmups  int
	requests int
}

func (f *fakeCompleter) Complete(_ context.Context, req core.CompletionRequest) (core.CompletionResult, error) {
	f.mu.Lock()
	if req.Messages[0].Content == WarmupPrompt {
		f.warmups++
		f.mu.Unlock()
		if f.warmupErr != nil {
			return core.CompletionResult{}, f.warmupErr
		}
		return core.CompletionResult{LatencyMs: 5, InputTokens: 1, OutputTokens: 1}, nil
	}
	f.requests++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return core.CompletionResult{LatencyMs: 100, InputTokens: 100, PrefixTokens: 10, OutputTokens: 10, Text: "5 6 7"}, nil
}

func (f *fakeCompleter) counts() (warmups, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warmups, f.requests
}

func failAll(core.CompletionRequest) (core.CompletionResult, error) {
	return core.CompletionResult{}, core.NewFailure(core.FailureRateLimit, "429 Too Many Requests", nil)
}

type fakeProber struct{}

func (fakeProber) Probe(context.Context) (int, error) { return 3, nil }
func (fakeProber) Target() string                     { return "http://endpoint/v1/chat/completions" }

// settler advances a fake clock on Sleep and then waits for every launched
// request to complete, so breaker decisions do not depend on goroutine timing.
type settler struct {
	dispatch.NopObserver
	*core.FakeClock

	mu         sync.Mutex
	cond       *sync.Cond
	launched   int
	completed  int
	onFinished func()
}

func newSettler() *settler {
	s := &settler{FakeClock: core.NewFakeClock(epoch)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *settler) Sleep(ctx context.Context, d time.Duration) error {
	if err := s.FakeClock.Sleep(ctx, d); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.completed < s.launched {
		s.cond.Wait()
	}
	return nil
}

func (s *settler) Launched(dispatch.Plan, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched++
}

func (s *settler) Completed(dispatch.Plan, dispatch.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.cond.Broadcast()
}

func (s *settler) PhaseFinished(dispatch.Plan, *dispatch.Result) {
	if s.onFinished != nil {
		s.onFinished()
	}
}

func testSuite(lengthSeconds int) *config.RunSuite {
	s := &config.RunSuite{
		Name:                   "test",
		RequestsPerSecondRates: []float64{2, 1},
		TestLengthInSeconds:    lengthSeconds,
		LoadTypes:              []config.LoadProfile{{PromptLength: 100, PrefixLength: 10, OutputLength: 10}},
	}
	s.ApplyDefaults()
	return s
}

func testObservation(numRequests int) *config.Observation {
	o := &config.Observation{
		Name:                   "test",
		DurationHours:          1,
		PollingIntervalMinutes: 15,
		LoadType:               config.LoadProfile{PromptLength: 100, PrefixLength: 10, OutputLength: 10},
		NumRequests:            numRequests,
		WithinSeconds:          2,
	}
	o.ApplyDefaults()
	return o
}
