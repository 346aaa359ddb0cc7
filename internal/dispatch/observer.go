package dispatch

// Observer is notified of dispatch progress. Completed and ProbeCompleted
// are called from unit goroutines and must be safe for concurrent use.
type Observer interface {
	PhaseStarted(plan Plan)
	Launched(plan Plan, index int)
	Completed(plan Plan, o Outcome)
	ProbeCompleted(plan Plan, p ProbeOutcome)
	Tripped(plan Plan, errorRate float64)
	PhaseFinished(plan Plan, res *Result)
}

// NopObserver ignores every notification. Embed it to implement only
// the methods you need.
type NopObserver struct{}

func (NopObserver) PhaseStarted(Plan)                 {}
func (NopObserver) Launched(Plan, int)                {}
func (NopObserver) Completed(Plan, Outcome)           {}
func (NopObserver) ProbeCompleted(Plan, ProbeOutcome) {}
func (NopObserver) Tripped(Plan, float64)             {}
func (NopObserver) PhaseFinished(Plan, *Result)       {}

// Observers fans notifications out in order.
type Observers []Observer

func (obs Observers) PhaseStarted(p Plan) {
	for _, o := range obs {
		o.PhaseStarted(p)
	}
}

func (obs Observers) Launched(p Plan, i int) {
	for _, o := range obs {
		o.Launched(p, i)
	}
}

func (obs Observers) Completed(p Plan, out Outcome) {
	for _, o := range obs {
		o.Completed(p, out)
	}
}

func (obs Observers) ProbeCompleted(p Plan, pr ProbeOutcome) {
	for _, o := range obs {
		o.ProbeCompleted(p, pr)
	}
}

func (obs Observers) Tripped(p Plan, rate float64) {
	for _, o := range obs {
		o.Tripped(p, rate)
	}
}

func (obs Observers) PhaseFinished(p Plan, r *Result) {
	for _, o := range obs {
		o.PhaseFinished(p, r)
	}
}
