package app

import (
	"context"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/clock"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/grading"
)

// Inputs are the values supplied by the host on every reconciliation.
type Inputs struct {
	Quiz     domain.QuizDefinition
	CourseID string
	WeekID   string
	// Prior is nil when the student has no submission or it is not known yet.
	Prior        *domain.SubmissionRecord
	PriorLoading bool
}

// ContextReady reports whether both scoping identifiers are present.
func (in Inputs) ContextReady() bool {
	return in.CourseID != "" && in.WeekID != ""
}

// MachineOptions configures a Machine. Zero values fall back to real time,
// a time-seeded shuffle and a discarding logger.
type MachineOptions struct {
	Scheduler       clock.Scheduler
	Rand            *rand.Rand
	Logger          logrus.FieldLogger
	OnChange        func(Snapshot)
	OnSubmitSuccess func(domain.SubmitReceipt)
}

// Machine drives a single student's traversal of a quiz.
// All methods are safe for concurrent use; countdown expiry arrives on the scheduler's goroutine.
type Machine struct {
	gateway         SubmissionGateway
	rnd             *rand.Rand
	log             logrus.FieldLogger
	onChange        func(Snapshot)
	onSubmitSuccess func(domain.SubmitReceipt)
	countdown       *Countdown

	mu          sync.Mutex
	initialized bool
	inputs      Inputs
	priorKey    string
	state       State
	questions   []domain.Question
	answers     domain.AnswerSet
	result      *domain.GradingResult
	errMsg      string
	expired     bool
	epoch       uint64
	closed      bool
	seq         uint64

	// expiryPending marks a time-out that could not submit for lack of context.
	expiryPending bool
	// adoptPrior accepts the next unseen prior as this machine's own submission
	// when the gateway acknowledged one without an id.
	adoptPrior    bool
}

func NewMachine(gateway SubmissionGateway, opts MachineOptions) *Machine {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	m := &Machine{
		gateway:         gateway,
		rnd:             opts.Rand,
		log:             opts.Logger,
		onChange:        opts.OnChange,
		onSubmitSuccess: opts.OnSubmitSuccess,
		state:           StateAwaitingContext,
		answers:         domain.AnswerSet{},
	}
	m.countdown = NewCountdown(opts.Scheduler, func(int) { m.notify() }, m.expire)
	return m
}

// Reconcile applies new external inputs.
func (m *Machine) Reconcile(in Inputs) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	signals := Signals{
		QuizID:       in.Quiz.ID,
		ContextReady: in.ContextReady(),
		PriorLoading: in.PriorLoading,
		PriorKey:     priorKey(in.Prior),
		Timed:        in.Quiz.Settings.Timed(),
	}
	if m.adoptPrior && signals.PriorKey != "" && in.Quiz.ID == m.inputs.Quiz.ID {
		m.priorKey = signals.PriorKey
		m.adoptPrior = false
	}
	t := Reconcile(m.viewLocked(), signals)
	before := m.state

	if t.Reset {
		m.resetLocked(in.Quiz)
	}
	m.inputs = in
	m.initialized = true
	if t.LoadPrior && in.Prior != nil {
		m.loadPriorLocked(*in.Prior)
	}
	if signals.PriorKey != "" {
		m.priorKey = signals.PriorKey
	}
	m.state = t.Next
	changed := t.Reset || t.LoadPrior || before != m.state
	overdue := m.expiryPending && m.state == StateTaking && in.ContextReady()
	if overdue {
		m.expiryPending = false
	}
	m.mu.Unlock()

	if changed {
		m.log.WithFields(logrus.Fields{"quiz_id": in.Quiz.ID, "from": before, "to": t.Next, "reset": t.Reset}).Debug("quiz reconciled")
		m.notify()
	}
	if overdue {
		m.log.WithField("quiz_id", in.Quiz.ID).Info("context restored after time limit, submitting")
		if err := m.Submit(context.Background(), true); err != nil {
			m.log.WithError(err).Debug("overdue submission not applied")
		}
	}
}

// SetAnswer records an answer while taking the quiz. For multi-choice questions
// checked adds value to the selection and !checked removes it; otherwise value replaces the answer.
func (m *Machine) SetAnswer(questionID, value string, checked bool) error {
	m.mu.Lock()
	if err := m.guardLocked(StateTaking); err != nil {
		m.mu.Unlock()
		return err
	}
	q, ok := findQuestion(m.questions, questionID)
	if !ok {
		m.mu.Unlock()
		return domain.ErrUnknownQuestion
	}

	if q.Kind == domain.KindMultiChoice {
		current := m.answers[questionID]
		m.answers[questionID] = toggle(current.Values, value, checked)
	} else {
		m.answers[questionID] = domain.SingleAnswer(value)
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// Start leaves the intro of a timed quiz and arms the countdown.
func (m *Machine) Start() error {
	m.mu.Lock()
	if err := m.guardLocked(StateIntro); err != nil {
		m.mu.Unlock()
		return err
	}
	m.enterTakingLocked()
	m.mu.Unlock()

	m.notify()
	return nil
}

// Submit sends the answers to the gateway and grades them locally on success.
// A forced submission skips the required-question check.
func (m *Machine) Submit(ctx context.Context, forced bool) error {
	m.mu.Lock()
	if err := m.guardLocked(StateTaking); err != nil {
		m.mu.Unlock()
		return err
	}
	forced = forced || m.expired
	if !forced {
		if missing := m.missingRequiredLocked(); len(missing) > 0 {
			verr := &domain.ValidationError{Missing: missing}
			m.errMsg = verr.Error()
			m.mu.Unlock()
			m.notify()
			return verr
		}
	}

	m.countdown.Stop()
	m.state = StateSubmitting
	m.errMsg = ""
	epoch := m.epoch
	quiz := m.inputs.Quiz
	questions := m.questions
	answers := m.answers.Clone()
	payload := domain.SubmitPayload{Answers: answers, CourseID: m.inputs.CourseID, WeekID: m.inputs.WeekID}
	m.mu.Unlock()
	m.notify()

	log := m.log.WithFields(logrus.Fields{"quiz_id": quiz.ID, "forced": forced})
	receipt, err := m.gateway.Submit(ctx, quiz.ID, payload)

	m.mu.Lock()
	if m.closed || m.epoch != epoch || m.state != StateSubmitting {
		m.mu.Unlock()
		log.Info("discarding stale submission response")
		return nil
	}
	if err != nil {
		failure := &domain.SubmissionFailure{Err: err}
		m.errMsg = failure.Error()
		m.state = StateTaking
		if quiz.Settings.Timed() {
			if remaining := m.countdown.Remaining(); remaining > 0 {
				m.countdown.Start(remaining)
			} else {
				m.expired = true
			}
		}
		m.mu.Unlock()
		log.WithError(err).Warn("quiz submission failed")
		m.notify()
		return failure
	}

	result := grading.Grade(questions, answers, quiz.Settings.PassingScorePercent)
	m.result = &result
	m.state = StateResults
	if receipt.ID != "" {
		m.priorKey = receipt.ID
		m.adoptPrior = false
	} else {
		m.adoptPrior = true
	}
	m.mu.Unlock()

	log.WithFields(logrus.Fields{"score": result.Score, "passed": result.Passed}).Info("quiz submitted")
	m.notify()
	if m.onSubmitSuccess != nil {
		m.onSubmitSuccess(receipt)
	}
	return nil
}

// Retake restarts a finished quiz when its settings allow it.
func (m *Machine) Retake() error {
	m.mu.Lock()
	if err := m.guardLocked(StateResults); err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.inputs.Quiz.Settings.AllowRetake {
		m.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	m.clearAttemptLocked()
	m.questions = m.selectQuestions(m.inputs.Quiz)
	if m.inputs.Quiz.Settings.Timed() {
		m.state = StateIntro
	} else {
		m.enterTakingLocked()
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// Close tears the machine down; a pending countdown or in-flight submission becomes a no-op.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.epoch++
	m.mu.Unlock()
	m.countdown.Reset()
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TimerRunning reports whether a countdown is armed.
func (m *Machine) TimerRunning() bool {
	return m.countdown.Running()
}

func (m *Machine) expire() {
	log := m.log.WithField("quiz_id", m.quizID())
	log.Info("time limit reached, submitting")
	err := m.Submit(context.Background(), true)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrContextNotReady) {
		m.mu.Lock()
		if !m.closed && m.state == StateTaking {
			m.expired = true
			m.expiryPending = true
		}
		m.mu.Unlock()
		log.Info("time limit reached without course context, submission deferred")
		return
	}
	log.WithError(err).Debug("forced submission not applied")
}

func (m *Machine) quizID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs.Quiz.ID
}

func (m *Machine) guardLocked(want State) error {
	if m.closed {
		return domain.ErrAttemptClosed
	}
	if !m.inputs.ContextReady() {
		return domain.ErrContextNotReady
	}
	if m.state != want {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (m *Machine) viewLocked() View {
	return View{
		Initialized: m.initialized,
		QuizID:      m.inputs.Quiz.ID,
		State:       m.state,
		PriorKey:    m.priorKey,
	}
}

// resetLocked treats the quiz as freshly mounted.
func (m *Machine) resetLocked(quiz domain.QuizDefinition) {
	m.clearAttemptLocked()
	m.epoch++
	m.priorKey = ""
	m.questions = m.selectQuestions(quiz)
}

func (m *Machine) clearAttemptLocked() {
	m.countdown.Reset()
	m.answers = domain.AnswerSet{}
	m.result = nil
	m.errMsg = ""
	m.expired = false
	m.expiryPending = false
}

func (m *Machine) enterTakingLocked() {
	m.state = StateTaking
	if limit := m.inputs.Quiz.Settings.TimeLimitMinutes; limit > 0 {
		m.countdown.Start(limit * 60)
	}
}

// loadPriorLocked shows a previous submission. A server-assigned score wins over the local one.
func (m *Machine) loadPriorLocked(prior domain.SubmissionRecord) {
	m.countdown.Reset()
	m.answers = prior.Answers.Clone()
	if m.answers == nil {
		m.answers = domain.AnswerSet{}
	}
	passing := m.inputs.Quiz.Settings.PassingScorePercent
	result := grading.Grade(m.questions, m.answers, passing)
	if prior.Score != nil {
		result.Score = *prior.Score
		result.Passed = result.Score >= passing
	}
	m.result = &result
	m.errMsg = ""
}

func (m *Machine) missingRequiredLocked() []string {
	var missing []string
	for _, q := range m.questions {
		if !q.Required {
			continue
		}
		answer, ok := m.answers[q.ID]
		if !ok || answer.Empty() {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

func (m *Machine) selectQuestions(quiz domain.QuizDefinition) []domain.Question {
	questions := append([]domain.Question(nil), quiz.Questions...)
	if quiz.Settings.ShuffleQuestions {
		m.rnd.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	return questions
}

func (m *Machine) notify() {
	if m.onChange == nil {
		return
	}
	m.onChange(m.Snapshot())
}

func findQuestion(questions []domain.Question, id string) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func toggle(values []string, value string, checked bool) domain.Answer {
	out := make([]string, 0, len(values)+1)
	present := false
	for _, v := range values {
		if v == value {
			present = true
			if !checked {
				continue
			}
		}
		out = append(out, v)
	}
	if checked && !present {
		out = append(out, value)
	}
	return domain.MultiAnswer(out...)
}

func priorKey(prior *domain.SubmissionRecord) string {
	switch {
	case prior == nil:
		return ""
	case prior.ID != "":
		return prior.ID
	case !prior.SubmittedAt.IsZero():
		return prior.SubmittedAt.UTC().Format(time.RFC3339Nano)
	default:
		return "prior:" + strings.TrimSpace(prior.QuizID)
	}
}
