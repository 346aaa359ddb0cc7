// Package dispatch issues scheduled completion requests concurrently,
// interleaves latency probes and stops launching when the error rate of
// recent request and probe outcomes exceeds a limit.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tokenflood/internal/core"
	"tokenflood/internal/logging"
	"tokenflood/internal/ratelimit"
	"tokenflood/internal/schedule"
	"tokenflood/internal/sink"
	"tokenflood/internal/workload"
)

// ErrScheduleMismatch is returned when a plan's delays do not fit its items.
var ErrScheduleMismatch = errors.New("schedule length does not match item count")

// ProbePolicy decides when latency probes run during a phase.
type ProbePolicy int

const (
	// ProbePerSecond probes at most once per elapsed second of schedule time.
	ProbePerSecond ProbePolicy = iota
	// ProbeOncePerPhase probes once, together with the first item.
	ProbeOncePerPhase
	ProbeNever
)

// Config holds the breaker and probe settings.
type Config struct {
	ErrorRateLimit  float64
	WindowSize      int
	MinSamples      int
	Probes          ProbePolicy
	DivergenceLimit float64
}

// DefaultConfig trips above a 30% error rate over the last 30 outcomes once
// at least 10 outcomes are known.
func DefaultConfig() Config {
	return Config{
		ErrorRateLimit:  0.3,
		WindowSize:      30,
		MinSamples:      10,
		Probes:          ProbePerSecond,
		DivergenceLimit: 0.1,
	}
}

// Plan is one phase worth of work.
type Plan struct {
	GroupID           string
	RequestsPerSecond float64
	// RequestOffset is added to item indexes to number request records.
	RequestOffset int
	Items         []workload.Item
	// Delays[i] is slept after launching item i. It may hold one entry per
	// item or one fewer, in which case nothing is slept after the last item.
	Delays schedule.Schedule
}

func (p Plan) validate() error {
	n, d := len(p.Items), len(p.Delays)
	if d == n || (n > 0 && d == n-1) {
		return nil
	}
	return fmt.Errorf("%w: %d items, %d delays", ErrScheduleMismatch, n, d)
}

// Result accounts for every item of a plan.
type Result struct {
	GroupID   string
	State     State
	Outcomes  []Outcome
	Probes    []ProbeOutcome
	Launched  int
	ErrorRate float64 // window error rate when the phase ended
	Elapsed   time.Duration
}

// Count returns how many outcomes are of kind k.
func (r *Result) Count(k OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == k {
			n++
		}
	}
	return n
}

// Dispatcher runs plans against a completion endpoint.
// One Dispatcher is shared by every phase of a suite.
type Dispatcher struct {
	completer core.Completer
	prober    core.Prober
	writer    sink.Writer
	model     string
	cfg       Config

	clock    core.Clock
	sleeper  core.Sleeper
	logger   *zap.Logger
	observer Observer
	warn     *logging.WarnOnce

	window *ErrorWindow
	ids    atomic.Uint64
}

type Option func(*Dispatcher)

func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

func WithModel(model string) Option {
	return func(d *Dispatcher) { d.model = model }
}

func WithClock(c core.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithSleeper(s core.Sleeper) Option {
	return func(d *Dispatcher) { d.sleeper = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithWarnOnce shares a warn-once set with the caller, who decides when to
// reset it.
func WithWarnOnce(w *logging.WarnOnce) Option {
	return func(d *Dispatcher) { d.warn = w }
}

// New creates a Dispatcher. prober may be nil to disable probes.
func New(completer core.Completer, prober core.Prober, writer sink.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		completer: completer,
		prober:    prober,
		writer:    writer,
		cfg:       DefaultConfig(),
		clock:     core.RealClock{},
		sleeper:   core.RealClock{},
		logger:    zap.NewNop(),
		observer:  NopObserver{},
		warn:      logging.NewWarnOnce(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.window = NewErrorWindow(d.cfg.WindowSize)
	return d
}

// Window is the error window shared across phases.
func (d *Dispatcher) Window() *ErrorWindow { return d.window }

// phase is the bookkeeping of one Run call.
type phase struct {
	plan    Plan
	state   RunState
	result  *Result
	units   sync.WaitGroup
	probeMu sync.Mutex
}

// Run issues every item of plan at its scheduled offset and waits for all
// launched requests and probes to finish. Units are not cancelled when ctx
// ends; cancelling ctx only stops further launches.
// The returned error is non-nil when a record could not be written or ctx
// ended; the Result is complete in both cases.
func (d *Dispatcher) Run(ctx context.Context, plan Plan) (*Result, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}
	ph := &phase{
		plan: plan,
		result: &Result{
			GroupID:  plan.GroupID,
			State:    StatePending,
			Outcomes: make([]Outcome, len(plan.Items)),
		},
	}
	d.observer.PhaseStarted(plan)
	d.logger.Info("phase started",
		zap.String("group", plan.GroupID),
		zap.Float64("rps", plan.RequestsPerSecond),
		zap.Int("requests", len(plan.Items)),
	)

	unitCtx := context.WithoutCancel(ctx)
	start := d.clock.Now()
	gate := ratelimit.NewProbeGate(start)
	state := StateScheduling
	ph.result.State = state
	var elapsed time.Duration
	var runErr error

	launched := 0
	for i, item := range plan.Items {
		if err := ph.state.Err(); err != nil {
			state, runErr = StateAborted, err
			break
		}
		if err := ctx.Err(); err != nil {
			state, runErr = StateInterrupted, err
			break
		}
		if rate, over := d.window.Exceeds(d.cfg.ErrorRateLimit, d.cfg.MinSamples); over {
			if ph.state.Trip() {
				ph.result.ErrorRate = rate
				d.logger.Error("error rate limit exceeded, stopping phase",
					zap.String("group", plan.GroupID),
					zap.Float64("error_rate", rate),
					zap.Float64("limit", d.cfg.ErrorRateLimit),
					zap.Int("window", d.window.Len()),
				)
				d.observer.Tripped(plan, rate)
			}
			state = StateCircuitTripped
			break
		}

		if i == 0 && d.cfg.Probes == ProbeOncePerPhase {
			d.launchProbe(unitCtx, ph)
		}
		d.observer.Launched(plan, i)
		d.launchUnit(unitCtx, ph, i, item)
		launched++

		if i < len(plan.Delays) {
			delay := core.Seconds(max(0, plan.Delays[i]))
			if err := d.sleeper.Sleep(ctx, delay); err != nil {
				state, runErr = StateInterrupted, err
				break
			}
			elapsed += delay
			if d.cfg.Probes == ProbePerSecond && gate.Allow(elapsed) {
				d.launchProbe(unitCtx, ph)
			}
		}
	}

	d.logger.Debug("waiting for in-flight requests", zap.String("group", plan.GroupID))
	ph.units.Wait()

	for i := launched; i < len(plan.Items); i++ {
		ph.result.Outcomes[i] = Outcome{Index: i, Kind: OutcomeSkipped, Item: plan.Items[i]}
	}
	if state == StateScheduling {
		state = StateCompleted
	}
	if runErr == nil {
		runErr = ph.state.Err()
	}
	ph.result.State = state
	ph.result.Launched = launched
	ph.result.Elapsed = d.clock.Since(start)
	if state != StateCircuitTripped {
		ph.result.ErrorRate = d.window.Rate()
	}

	d.observer.PhaseFinished(plan, ph.result)
	d.logger.Info("phase finished",
		zap.String("group", plan.GroupID),
		zap.Stringer("state", state),
		zap.Int("launched", launched),
		zap.Int("skipped", len(plan.Items)-launched),
		zap.Int("probes", len(ph.result.Probes)),
	)
	return ph.result, runErr
}

// launchUnit starts one request. Its completion handler fires exactly once,
// also when the request panics.
func (d *Dispatcher) launchUnit(ctx context.Context, ph *phase, index int, item workload.Item) {
	id := d.ids.Add(1)
	datetime := d.clock.Now()
	ph.units.Add(1)
	go func() {
		defer ph.units.Done()
		var once sync.Once
		complete := func(o Outcome) bool {
			fired := false
			once.Do(func() {
				fired = true
				d.complete(ph, datetime, o)
			})
			return fired
		}
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			fired := complete(Outcome{
				ID:      id,
				Index:   index,
				Kind:    OutcomeFailure,
				Item:    item,
				Failure: core.FailureUnknown,
				Message: fmt.Sprintf("panic: %v", r),
			})
			if !fired {
				d.logger.Error("completion handler panicked", zap.Int("index", index), zap.Any("panic", r))
				ph.state.SetErr(fmt.Errorf("completion handler panicked: %v", r))
			}
		}()

		res, err := d.completer.Complete(ctx, core.CompletionRequest{
			Messages:  core.UserMessages(item.Prompt),
			MaxTokens: item.OutputLength,
		})
		if err != nil {
			complete(Outcome{
				ID:      id,
				Index:   index,
				Kind:    OutcomeFailure,
				Item:    item,
				Failure: core.ClassifyFailure(err),
				Message: core.FailureMessage(err),
			})
			return
		}
		complete(Outcome{ID: id, Index: index, Kind: OutcomeSuccess, Item: item, Result: res})
	}()
}

// complete stores the outcome, writes its record and slides the window.
func (d *Dispatcher) complete(ph *phase, datetime time.Time, o Outcome) {
	plan := ph.plan
	ph.result.Outcomes[o.Index] = o
	var err error
	switch o.Kind {
	case OutcomeSuccess:
		err = d.writer.WriteRequest(sink.RequestRecord{
			Datetime:             datetime,
			RequestsPerSecond:    plan.RequestsPerSecond,
			RequestNumber:        plan.RequestOffset + o.Index,
			Model:                d.model,
			LatencyMs:            o.Result.LatencyMs,
			ExpectedInputTokens:  o.Item.PromptLength,
			MeasuredInputTokens:  o.Result.InputTokens,
			ExpectedPrefixTokens: o.Item.PrefixLength,
			MeasuredPrefixTokens: o.Result.PrefixTokens,
			ExpectedOutputTokens: o.Item.OutputLength,
			MeasuredOutputTokens: o.Result.OutputTokens,
			GeneratedText:        o.Result.Text,
			Prompt:               o.Item.Prompt,
			GroupID:              plan.GroupID,
		})
		d.checkDivergence(plan, o)
	case OutcomeFailure:
		err = d.writer.WriteError(sink.ErrorRecord{
			Datetime:          datetime,
			RequestsPerSecond: plan.RequestsPerSecond,
			Type:              o.Failure.String(),
			Message:           o.Message,
			GroupID:           plan.GroupID,
		})
		d.logger.Debug("request failed",
			zap.String("group", plan.GroupID),
			zap.Int("index", o.Index),
			zap.Stringer("kind", o.Failure),
			zap.String("message", o.Message),
		)
	}
	if err != nil {
		ph.state.SetErr(fmt.Errorf("writing record: %w", err))
	}
	d.window.Record(o.Kind == OutcomeFailure)
	d.observer.Completed(plan, o)
}

// launchProbe starts one probe. Like a unit, its outcome is recorded
// exactly once and slides the error window.
func (d *Dispatcher) launchProbe(ctx context.Context, ph *phase) {
	if d.prober == nil {
		return
	}
	id := d.ids.Add(1)
	datetime := d.clock.Now()
	ph.units.Add(1)
	go func() {
		defer ph.units.Done()
		var once sync.Once
		complete := func(p ProbeOutcome) bool {
			fired := false
			once.Do(func() {
				fired = true
				d.completeProbe(ph, datetime, p)
			})
			return fired
		}
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if !complete(ProbeOutcome{ID: id, Err: fmt.Errorf("panic: %v", r)}) {
				d.logger.Error("probe completion handler panicked", zap.Any("panic", r))
				ph.state.SetErr(fmt.Errorf("probe completion handler panicked: %v", r))
			}
		}()
		ms, err := d.prober.Probe(ctx)
		complete(ProbeOutcome{ID: id, LatencyMs: ms, Err: err})
	}()
}

func (d *Dispatcher) completeProbe(ph *phase, datetime time.Time, p ProbeOutcome) {
	plan := ph.plan
	var err error
	if p.Err != nil {
		err = d.writer.WriteError(sink.ErrorRecord{
			Datetime:          datetime,
			RequestsPerSecond: plan.RequestsPerSecond,
			Type:              core.ClassifyFailure(p.Err).String(),
			Message:           core.FailureMessage(p.Err),
			GroupID:           plan.GroupID,
		})
	} else {
		err = d.writer.WriteProbe(sink.ProbeRecord{
			Datetime:          datetime,
			EndpointURL:       d.prober.Target(),
			RequestsPerSecond: plan.RequestsPerSecond,
			LatencyMs:         p.LatencyMs,
			GroupID:           plan.GroupID,
		})
	}
	if err != nil {
		ph.state.SetErr(fmt.Errorf("writing probe record: %w", err))
	}
	ph.probeMu.Lock()
	ph.result.Probes = append(ph.result.Probes, p)
	ph.probeMu.Unlock()
	d.window.Record(p.Err != nil)
	d.observer.ProbeCompleted(plan, p)
}

// checkDivergence warns once per token kind when measured token counts
// stray from the expected ones by more than the configured fraction.
func (d *Dispatcher) checkDivergence(plan Plan, o Outcome) {
	checks := []struct {
		name     string
		expected int
		measured int
	}{
		{"input", o.Item.PromptLength, o.Result.InputTokens},
		{"prefix", o.Item.PrefixLength, o.Result.PrefixTokens},
		{"output", o.Item.OutputLength, o.Result.OutputTokens},
	}
	for _, c := range checks {
		rel, ok := RelativeError(c.measured, c.expected)
		if !ok || rel <= d.cfg.DivergenceLimit {
			continue
		}
		d.warn.Warn(d.logger, c.name+"_tokens",
			fmt.Sprintf("measured %s tokens diverge from expected", c.name),
			zap.String("group", plan.GroupID),
			zap.Int("expected", c.expected),
			zap.Int("measured", c.measured),
			zap.Float64("relative_error", rel),
		)
	}
}

// RelativeError is |measured-expected|/expected. It is undefined for an
// expected value of zero.
func RelativeError(measured, expected int) (float64, bool) {
	if expected == 0 {
		return 0, false
	}
	return math.Abs(float64(measured-expected)) / float64(expected), true
}
