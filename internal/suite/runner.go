// Package suite drives whole runs: the warm-up request, one dispatch phase
// per target rate or polling cycle, and the rules for stopping between
// phases.
package suite

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokenflood/internal/config"
	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
	"tokenflood/internal/logging"
	"tokenflood/internal/schedule"
	"tokenflood/internal/sink"
	"tokenflood/internal/workload"
)

var (
	ErrWarmupFailed   = errors.New("warm-up request failed")
	ErrCircuitTripped = errors.New("phase stopped by the error rate limit")
)

// WarmupPrompt is sent once with a single output token before any phase.
const WarmupPrompt = "ping"

// WarmupGroup is the group id of the warm-up error record.
const WarmupGroup = "warmup"

// Report holds every phase that ran, in order, including the one that
// stopped the run.
type Report struct {
	RunID  string
	Phases []*dispatch.Result
}

// Runner executes suites and observations against one completion endpoint.
type Runner struct {
	completer core.Completer
	prober    core.Prober
	writer    sink.Writer

	model    string
	runID    string
	clock    core.Clock
	sleeper  core.Sleeper
	logger   *zap.Logger
	observer dispatch.Observer
	rng      *rand.Rand
	warn     *logging.WarnOnce
}

type Option func(*Runner)

func WithModel(model string) Option {
	return func(r *Runner) { r.model = model }
}

func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

func WithClock(c core.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

func WithSleeper(s core.Sleeper) Option {
	return func(r *Runner) { r.sleeper = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

func WithObserver(o dispatch.Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRand seeds the schedule generator.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) { r.rng = rng }
}

// New creates a Runner. prober may be nil to run without latency probes.
func New(completer core.Completer, prober core.Prober, writer sink.Writer, opts ...Option) *Runner {
	r := &Runner{
		completer: completer,
		prober:    prober,
		writer:    writer,
		clock:     core.RealClock{},
		sleeper:   core.RealClock{},
		logger:    zap.NewNop(),
		observer:  dispatch.NopObserver{},
		warn:      logging.NewWarnOnce(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(r.clock.Now().UnixNano()))
	}
	r.logger = r.logger.With(zap.String("run_id", r.runID))
	return r
}

func (r *Runner) RunID() string { return r.runID }

// Warmup sends one minimal request. A failure is written as an error record
// and returned wrapped in ErrWarmupFailed.
func (r *Runner) Warmup(ctx context.Context) error {
	r.logger.Info("warming up")
	datetime := r.clock.Now()
	res, err := r.completer.Complete(ctx, core.CompletionRequest{
		Messages:  core.UserMessages(WarmupPrompt),
		MaxTokens: 1,
	})
	if err != nil {
		kind := core.ClassifyFailure(err)
		if werr := r.writer.WriteError(sink.ErrorRecord{
			Datetime: datetime,
			Type:     kind.String(),
			Message:  core.FailureMessage(err),
			GroupID:  WarmupGroup,
		}); werr != nil {
			err = errors.Join(err, fmt.Errorf("writing record: %w", werr))
		}
		r.logger.Error("not starting run, warm-up failed", zap.Stringer("kind", kind), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWarmupFailed, err)
	}
	r.logger.Debug("warm-up done", zap.Int("latency_ms", res.LatencyMs))
	return nil
}

func (r *Runner) dispatcher(limit config.ErrorLimit, probes dispatch.ProbePolicy) *dispatch.Dispatcher {
	cfg := dispatch.DefaultConfig()
	cfg.ErrorRateLimit = limit.Rate
	cfg.WindowSize = limit.WindowSize
	cfg.MinSamples = limit.MinSamples
	cfg.Probes = probes
	return dispatch.New(r.completer, r.prober, r.writer,
		dispatch.WithConfig(cfg),
		dispatch.WithModel(r.model),
		dispatch.WithClock(r.clock),
		dispatch.WithSleeper(r.sleeper),
		dispatch.WithLogger(r.logger),
		dispatch.WithObserver(r.observer),
		dispatch.WithWarnOnce(r.warn),
	)
}

// startPhase clears the per-phase breaker and warning state.
func (r *Runner) startPhase(d *dispatch.Dispatcher) {
	d.Window().Reset()
	r.warn.Reset()
}

// RunSuite warms up and then runs one phase per rate in ascending order.
// A tripped phase ends the suite with ErrCircuitTripped; the phases run so
// far stay in the report.
func (r *Runner) RunSuite(ctx context.Context, s *config.RunSuite) (*Report, error) {
	report := &Report{RunID: r.runID}
	phases, err := s.Phases()
	if err != nil {
		return report, err
	}
	synth, err := s.Workload.Synthesizer()
	if err != nil {
		return report, err
	}
	if err := r.Warmup(ctx); err != nil {
		return report, err
	}

	d := r.dispatcher(s.ErrorLimit, dispatch.ProbePerSecond)
	r.logger.Info("starting run suite", zap.String("suite", s.Name), zap.Int("phases", len(phases)))
	for i, ph := range phases {
		items, err := synth.Items(ph.Profiles, ph.NumRequests())
		if err != nil {
			return report, err
		}
		plan := dispatch.Plan{
			GroupID:           strconv.Itoa(i),
			RequestsPerSecond: ph.RequestsPerSecond,
			Items:             items,
			Delays:            schedule.ForPhase(ph, r.rng),
		}
		r.startPhase(d)
		res, err := d.Run(ctx, plan)
		if res != nil {
			report.Phases = append(report.Phases, res)
		}
		if err != nil {
			return report, fmt.Errorf("phase %d (%.2f req/s): %w", i+1, ph.RequestsPerSecond, err)
		}
		if res.State == dispatch.StateCircuitTripped {
			r.logger.Error("ending run suite, error rate limit exceeded",
				zap.Int("phase", i+1),
				zap.Float64("error_rate", res.ErrorRate),
			)
			return report, fmt.Errorf("%w: phase %d (%.2f req/s) at error rate %.2f",
				ErrCircuitTripped, i+1, ph.RequestsPerSecond, res.ErrorRate)
		}
	}
	r.logger.Info("run suite finished", zap.String("suite", s.Name))
	return report, nil
}

// ObservationRate is the rate recorded for every poll of o.
func ObservationRate(o *config.Observation) float64 {
	if o.WithinSeconds <= 0 {
		return float64(o.NumRequests)
	}
	return float64(o.NumRequests) / o.WithinSeconds
}

// RunObservation warms up and then polls the endpoint NumPolls times. Each
// poll is an even burst; a tripped poll is logged and the next poll still
// runs. Request numbers continue across polls.
func (r *Runner) RunObservation(ctx context.Context, o *config.Observation) (*Report, error) {
	report := &Report{RunID: r.runID}
	synth, err := o.Workload.Synthesizer()
	if err != nil {
		return report, err
	}
	if err := r.Warmup(ctx); err != nil {
		return report, err
	}

	d := r.dispatcher(o.ErrorLimit, dispatch.ProbeOncePerPhase)
	profiles := []workload.LoadProfile{o.Profile()}
	rate := ObservationRate(o)
	window := core.Seconds(o.WithinSeconds)
	polls := o.NumPolls()
	offset := 0
	r.logger.Info("starting observation", zap.String("observation", o.Name), zap.Int("polls", polls))
	for poll := range polls {
		items, err := synth.Items(profiles, o.NumRequests)
		if err != nil {
			return report, err
		}
		plan := dispatch.Plan{
			GroupID:           strconv.Itoa(poll),
			RequestsPerSecond: rate,
			RequestOffset:     offset,
			Items:             items,
			Delays:            o.Schedule(),
		}
		offset += len(items)
		r.startPhase(d)
		res, err := d.Run(ctx, plan)
		if res != nil {
			report.Phases = append(report.Phases, res)
		}
		if err != nil {
			return report, fmt.Errorf("poll %d: %w", poll, err)
		}
		if res.State == dispatch.StateCircuitTripped {
			r.logger.Warn("poll stopped by the error rate limit",
				zap.Int("poll", poll),
				zap.Float64("error_rate", res.ErrorRate),
			)
		}
		if poll == polls-1 {
			break
		}

		// Draining past the burst window eats into the pause.
		pause := max(0, o.InterPollPause()-max(0, res.Elapsed-window))
		r.logger.Info("sleeping until next poll", zap.Duration("pause", pause))
		if err := r.sleeper.Sleep(ctx, pause); err != nil {
			return report, fmt.Errorf("waiting for poll %d: %w", poll+1, err)
		}
	}
	r.logger.Info("observation finished", zap.String("observation", o.Name))
	return report, nil
}

// Tripped reports whether any phase of the report hit the error rate limit.
func (rep *Report) Tripped() bool {
	for _, p := range rep.Phases {
		if p.State == dispatch.StateCircuitTripped {
			return true
		}
	}
	return false
}

// Elapsed sums the wall time of every phase.
func (rep *Report) Elapsed() time.Duration {
	var total time.Duration
	for _, p := range rep.Phases {
		total += p.Elapsed
	}
	return total
}
