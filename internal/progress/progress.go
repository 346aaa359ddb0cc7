// Package progress renders a live status line for the running phase.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tokenflood/internal/core"
	"tokenflood/internal/dispatch"
)

// LogInterval is the minimum gap between progress log entries in quiet mode.
const LogInterval = 30 * time.Second

// Progress implements dispatch.Observer. It redraws a status line once per
// tick, or in quiet mode logs the same figures at most once per LogInterval.
type Progress struct {
	clock  core.Clock
	logger *zap.Logger
	quiet  bool
	every  rate.Sometimes

	mu      sync.Mutex
	output  io.Writer
	group   string
	rps     float64
	total   int
	started time.Time
	active  bool

	launched  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	ticker  *time.Ticker
	stopCh  chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

func NewProgress(logger *zap.Logger, quiet bool) *Progress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Progress{
		clock:  core.RealClock{},
		logger: logger,
		quiet:  quiet,
		every:  rate.Sometimes{Interval: LogInterval},
		output: os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *Progress) SetClock(c core.Clock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = c
}

// Start redraws the status line every interval until Stop.
func (p *Progress) Start(interval time.Duration) {
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.ticker = time.NewTicker(interval)
	go p.run()
}

func (p *Progress) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.Tick()
		}
	}
}

func (p *Progress) Stop() {
	if p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
		<-p.done
	}
	if !p.quiet {
		p.mu.Lock()
		fmt.Fprint(p.output, "\033[K")
		p.mu.Unlock()
	}
}

// Tick renders the current figures once.
func (p *Progress) Tick() {
	line, ok := p.Line()
	if !ok {
		return
	}
	if p.quiet {
		p.every.Do(func() { p.logger.Info("phase progress", zap.String("status", line)) })
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\r", line)
	p.mu.Unlock()
}

// Line formats the status of the running phase. It reports false when no
// phase is running.
func (p *Progress) Line() (string, bool) {
	p.mu.Lock()
	group, rps, total, started, active := p.group, p.rps, p.total, p.started, p.active
	elapsed := p.clock.Since(started).Round(time.Second)
	p.mu.Unlock()
	if !active {
		return "", false
	}

	launched := p.launched.Load()
	succeeded := p.succeeded.Load()
	failed := p.failed.Load()
	errorRate := 0.0
	if done := succeeded + failed; done > 0 {
		errorRate = float64(failed) / float64(done) * 100
	}
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("[%02d:%02d] Phase %s @ %.2f req/s | Launched: %d/%d | OK: %d | Errors: %d (%.1f%%)",
		mins, secs, group, rps, launched, total, succeeded, failed, errorRate), true
}

// Print writes a message on its own line unless quiet.
func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	p.Print(fmt.Sprintf(format, args...))
}

func (p *Progress) PhaseStarted(plan dispatch.Plan) {
	p.mu.Lock()
	p.group = plan.GroupID
	p.rps = plan.RequestsPerSecond
	p.total = len(plan.Items)
	p.started = p.clock.Now()
	p.active = true
	p.mu.Unlock()

	p.launched.Store(0)
	p.succeeded.Store(0)
	p.failed.Store(0)
}

func (p *Progress) Launched(dispatch.Plan, int) {
	p.launched.Add(1)
}

func (p *Progress) Completed(_ dispatch.Plan, o dispatch.Outcome) {
	switch o.Kind {
	case dispatch.OutcomeSuccess:
		p.succeeded.Add(1)
	case dispatch.OutcomeFailure:
		p.failed.Add(1)
	}
}

func (p *Progress) ProbeCompleted(dispatch.Plan, dispatch.ProbeOutcome) {}

func (p *Progress) Tripped(plan dispatch.Plan, errorRate float64) {
	p.Printf("Phase %s: error rate %.1f%% over the limit, no further requests", plan.GroupID, errorRate*100)
}

func (p *Progress) PhaseFinished(_ dispatch.Plan, res *dispatch.Result) {
	line, ok := p.Line()
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	if ok {
		p.Printf("%s | %s", line, res.State)
	}
}
