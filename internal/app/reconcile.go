package app

// State is a phase of the quiz-taking lifecycle.
type State string

const (
	StateAwaitingContext    State = "awaiting_context"
	StateAwaitingSubmission State = "awaiting_submission_fetch"
	StateIntro              State = "intro"
	StateTaking             State = "taking"
	StateSubmitting         State = "submitting"
	StateResults            State = "results"
)

// View is the part of a machine's state that reconciliation depends on.
type View struct {
	Initialized bool
	QuizID      string
	State       State
	// PriorKey identifies the last prior submission the machine has observed.
	PriorKey string
}

// Signals are the external inputs reduced to what reconciliation needs.
type Signals struct {
	QuizID       string
	ContextReady bool
	PriorLoading bool
	// PriorKey is empty when no prior submission is known.
	PriorKey string
	Timed    bool
}

// Transition is the outcome of reconciling a View with new Signals.
// Next equal to the current state means no change.
type Transition struct {
	Reset     bool
	Next      State
	LoadPrior bool
}

// Reconcile decides whether new inputs reset, advance or leave the lifecycle alone.
// It is pure and idempotent: feeding the same signals twice yields no further change.
func Reconcile(v View, s Signals) Transition {
	if !v.Initialized || v.QuizID != s.QuizID {
		next := initialState(s)
		return Transition{Reset: true, Next: next, LoadPrior: next == StateResults}
	}

	switch v.State {
	case StateSubmitting, StateResults:
		return Transition{Next: v.State}
	case StateIntro, StateTaking:
		if s.PriorKey != "" && s.PriorKey != v.PriorKey {
			return Transition{Next: StateResults, LoadPrior: true}
		}
		return Transition{Next: v.State}
	default:
		next := initialState(s)
		return Transition{Next: next, LoadPrior: next == StateResults}
	}
}

func initialState(s Signals) State {
	switch {
	case !s.ContextReady:
		return StateAwaitingContext
	case s.PriorLoading:
		return StateAwaitingSubmission
	case s.PriorKey != "":
		return StateResults
	case s.Timed:
		return StateIntro
	default:
		return StateTaking
	}
}
