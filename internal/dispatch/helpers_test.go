package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokenflood/internal/core"
	"tokenflood/internal/workload"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type completeFunc func(ctx context.Context, index int, req core.CompletionRequest) (core.CompletionResult, error)

type fakeCompleter struct {
	fn completeFunc
}

func (f *fakeCompleter) Complete(ctx context.Context, req core.CompletionRequest) (core.CompletionResult, error) {
	prompt := req.Messages[0].Content
	index, _ := strconv.Atoi(strings.TrimPrefix(prompt, "item-"))
	return f.fn(ctx, index, req)
}

func succeed(context.Context, int, core.CompletionRequest) (core.CompletionResult, error) {
	return core.CompletionResult{LatencyMs: 100, InputTokens: 100, PrefixTokens: 10, OutputTokens: 8, Text: "1 2 3"}, nil
}

func fail(context.Context, int, core.CompletionRequest) (core.CompletionResult, error) {
	return core.CompletionResult{}, core.NewFailure(core.FailureConnectivity, "connection reset", nil)
}

type fakeProber struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakeProber) Probe(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 7, p.err
}

func (p *fakeProber) Target() string { return "http://endpoint/v1/chat/completions" }

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// items builds n items whose prompts carry their index.
func items(n int) []workload.Item {
	out := make([]workload.Item, n)
	for i := range out {
		out[i] = workload.Item{PromptLength: 100, PrefixLength: 10, OutputLength: 8, Prompt: fmt.Sprintf("item-%d", i)}
	}
	return out
}

func delays(n int, each float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = each
	}
	return out
}

// settler is a sleeper that advances a fake clock and then waits until all
// but `inFlight` launched units have completed, which makes breaker
// decisions deterministic.
type settler struct {
	NopObserver
	clock    *core.FakeClock
	inFlight int

	mu        sync.Mutex
	cond      *sync.Cond
	launched  int
	completed int
	onTrip    func()
}

func newSettler(inFlight int) *settler {
	s := &settler{clock: core.NewFakeClock(epoch), inFlight: inFlight}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *settler) Sleep(ctx context.Context, d time.Duration) error {
	if err := s.clock.Sleep(ctx, d); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.completed < s.launched-s.inFlight {
		s.cond.Wait()
	}
	return nil
}

func (s *settler) Launched(Plan, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched++
}

func (s *settler) Completed(Plan, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.cond.Broadcast()
}

func (s *settler) Tripped(Plan, float64) {
	if s.onTrip != nil {
		s.onTrip()
	}
}
