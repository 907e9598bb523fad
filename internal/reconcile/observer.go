package reconcile

// Step is one decision taken by a run.
type Step struct {
	// Decision is "wait", "write" or the name of the terminal branch.
	Decision string

	// Iteration counts getter calls, starting at 1.
	Iteration int

	// RemainingAttempts and TTL are the values after the step was applied.
	RemainingAttempts int
	TTL               int
}

// Observer receives a callback for every decision of a run.
// Callbacks run on the run's goroutine and must not block.
type Observer[S any] interface {
	OnStep(step Step, snapshot S)
	OnOutcome(outcome Outcome[S])
}

// Observers fans callbacks out to several observers in order.
type Observers[S any] []Observer[S]

// OnStep implements Observer.
func (os Observers[S]) OnStep(step Step, snapshot S) {
	for _, o := range os {
		o.OnStep(step, snapshot)
	}
}

// OnOutcome implements Observer.
func (os Observers[S]) OnOutcome(outcome Outcome[S]) {
	for _, o := range os {
		o.OnOutcome(outcome)
	}
}
