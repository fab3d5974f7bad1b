package app

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/clock"
	"quiz-attempt-service/internal/domain"
)

// AttemptKey identifies one student's attempt at one quiz.
type AttemptKey struct {
	QuizID string
	UserID string
}

// AttemptRepository abstracts where live attempts are kept (in-memory, Redis-marked, etc).
type AttemptRepository interface {
	GetOrCreate(key AttemptKey, create func() *Attempt) *Attempt
	Get(key AttemptKey) (*Attempt, bool)
	Delete(key AttemptKey)
	List() []*Attempt
}

// QuizCacheForgetter is implemented by quiz repositories that cache definitions.
// Refresh drops the cached copy so edited content is picked up.
type QuizCacheForgetter interface {
	Forget(ctx context.Context, quizID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// SubmissionInvalidator drops cached prior submissions after a successful submit.
type SubmissionInvalidator interface {
	Invalidate(ctx context.Context, userID, quizID string) error
}

// OpenRequest carries what a UI knows when it mounts a quiz.
type OpenRequest struct {
	QuizID   string
	UserID   string
	CourseID string
	WeekID   string
	Token    string
}

// AttemptService hosts quiz machines and relays student actions to them.
type AttemptService struct {
	attempts    AttemptRepository
	quizzes     QuizRepository
	gateways    GatewayFactory
	invalidator SubmissionInvalidator
	sched       clock.Scheduler
	now         func() time.Time
	seed        func() int64
	log         logrus.FieldLogger
}

type ServiceOption func(*AttemptService)

func WithScheduler(s clock.Scheduler) ServiceOption {
	return func(svc *AttemptService) { svc.sched = s }
}

// WithClock is used by tests for deterministic idle tracking.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *AttemptService) { svc.now = now }
}

// WithSeed fixes question shuffling.
func WithSeed(seed int64) ServiceOption {
	return func(svc *AttemptService) { svc.seed = func() int64 { return seed } }
}

func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(svc *AttemptService) { svc.log = l }
}

func WithInvalidator(inv SubmissionInvalidator) ServiceOption {
	return func(svc *AttemptService) { svc.invalidator = inv }
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, gateways GatewayFactory, opts ...ServiceOption) *AttemptService {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	svc := &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		gateways: gateways,
		sched:    clock.Real{},
		now:      time.Now,
		seed:     func() int64 { return time.Now().UnixNano() },
		log:      quiet,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Open mounts (or re-attaches to) a student's attempt, then resolves any prior submission.
func (s *AttemptService) Open(ctx context.Context, req OpenRequest) (Snapshot, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return Snapshot{}, err
	}

	key := AttemptKey{QuizID: req.QuizID, UserID: req.UserID}
	attempt := s.attempts.GetOrCreate(key, func() *Attempt { return s.newAttempt(key) })
	attempt.bind(req.CourseID, req.WeekID, s.gateways(req.UserID, req.Token))

	s.resolve(ctx, attempt, quiz)
	return attempt.Snapshot(), nil
}

// Refresh reloads quiz content and the prior submission for an open attempt.
func (s *AttemptService) Refresh(ctx context.Context, quizID, userID string) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if cache, ok := s.quizzes.(QuizCacheForgetter); ok {
		if err := cache.Forget(ctx, quizID); err != nil {
			s.log.WithError(err).WithField("quiz_id", quizID).Warn("could not drop cached quiz")
		}
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return Snapshot{}, err
	}
	s.resolve(ctx, attempt, quiz)
	return attempt.Snapshot(), nil
}

func (s *AttemptService) SetAnswer(_ context.Context, quizID, userID, questionID, value string, checked bool) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := attempt.machine.SetAnswer(questionID, value, checked); err != nil {
		return attempt.Snapshot(), err
	}
	return attempt.Snapshot(), nil
}

func (s *AttemptService) Start(_ context.Context, quizID, userID string) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := attempt.machine.Start(); err != nil {
		return attempt.Snapshot(), err
	}
	return attempt.Snapshot(), nil
}

func (s *AttemptService) Submit(ctx context.Context, quizID, userID string) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := attempt.machine.Submit(ctx, false); err != nil {
		return attempt.Snapshot(), err
	}
	return attempt.Snapshot(), nil
}

func (s *AttemptService) Retake(_ context.Context, quizID, userID string) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := attempt.machine.Retake(); err != nil {
		return attempt.Snapshot(), err
	}
	return attempt.Snapshot(), nil
}

func (s *AttemptService) Snapshot(quizID, userID string) (Snapshot, error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return attempt.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshots for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AttemptService) Subscribe(_ context.Context, quizID, userID string) (<-chan Snapshot, func(), error) {
	attempt, err := s.lookup(quizID, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := attempt.subscribe()
	return ch, cancel, nil
}

// Close tears down an attempt and forgets it.
func (s *AttemptService) Close(quizID, userID string) {
	key := AttemptKey{QuizID: quizID, UserID: userID}
	attempt, ok := s.attempts.Get(key)
	if !ok {
		return
	}
	attempt.close()
	s.attempts.Delete(key)
}

// SweepIdle closes attempts untouched for longer than idle. Attempts with
// listeners, a submission in flight, or a running countdown are kept.
func (s *AttemptService) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	closed := 0
	for _, attempt := range s.attempts.List() {
		if !attempt.idleSince(cutoff) {
			continue
		}
		s.Close(attempt.key.QuizID, attempt.key.UserID)
		closed++
	}
	if closed > 0 {
		s.log.WithField("closed", closed).Info("swept idle attempts")
	}
	return closed
}

func (s *AttemptService) lookup(quizID, userID string) (*Attempt, error) {
	attempt, ok := s.attempts.Get(AttemptKey{QuizID: quizID, UserID: userID})
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	attempt.touch()
	return attempt, nil
}

// resolve reconciles with a pending lookup, fetches the prior submission and reconciles again.
// A failed fetch is treated as no prior submission.
func (s *AttemptService) resolve(ctx context.Context, attempt *Attempt, quiz domain.QuizDefinition) {
	in := attempt.inputs(quiz)
	in.PriorLoading = true
	attempt.machine.Reconcile(in)

	prior, err := attempt.FetchMySubmission(ctx, quiz.ID)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"quiz_id": quiz.ID,
			"user_id": attempt.key.UserID,
		}).Warn("prior submission lookup failed")
		prior = nil
	}

	in.Prior = prior
	in.PriorLoading = false
	attempt.machine.Reconcile(in)
}

func (s *AttemptService) newAttempt(key AttemptKey) *Attempt {
	log := s.log.WithFields(logrus.Fields{"quiz_id": key.QuizID, "user_id": key.UserID})
	a := &Attempt{
		key:         key,
		now:         s.now,
		lastActive:  s.now(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	a.machine = NewMachine(a, MachineOptions{
		Scheduler: s.sched,
		Rand:      rand.New(rand.NewSource(s.seed())),
		Logger:    log,
		OnChange:  a.broadcast,
		OnSubmitSuccess: func(receipt domain.SubmitReceipt) {
			log.WithField("submission_id", receipt.ID).Debug("submission acknowledged")
			if s.invalidator == nil {
				return
			}
			if err := s.invalidator.Invalidate(context.Background(), key.UserID, key.QuizID); err != nil {
				log.WithError(err).Warn("invalidate cached submission")
			}
		},
	})
	return a
}

// Attempt pairs a Machine with the student context and snapshot listeners.
// It is the machine's gateway so a reconnect can swap credentials underneath it.
type Attempt struct {
	key     AttemptKey
	machine *Machine
	now     func() time.Time

	mu          sync.RWMutex
	courseID    string
	weekID      string
	gateway     SubmissionGateway
	lastActive  time.Time
	subscribers map[chan Snapshot]struct{}
	lastSeq     uint64
}

// NewAttempt is exported for infrastructure tests that need a standalone attempt.
func NewAttempt(key AttemptKey, gateway SubmissionGateway) *Attempt {
	a := &Attempt{key: key, now: time.Now, lastActive: time.Now(), gateway: gateway, subscribers: make(map[chan Snapshot]struct{})}
	a.machine = NewMachine(a, MachineOptions{OnChange: a.broadcast})
	return a
}

func (a *Attempt) Key() AttemptKey {
	return a.key
}

func (a *Attempt) Snapshot() Snapshot {
	return a.machine.Snapshot()
}

func (a *Attempt) Submit(ctx context.Context, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	a.mu.RLock()
	gw := a.gateway
	a.mu.RUnlock()
	return gw.Submit(ctx, quizID, payload)
}

func (a *Attempt) FetchMySubmission(ctx context.Context, quizID string) (*domain.SubmissionRecord, error) {
	a.mu.RLock()
	gw := a.gateway
	a.mu.RUnlock()
	return gw.FetchMySubmission(ctx, quizID)
}

func (a *Attempt) bind(courseID, weekID string, gateway SubmissionGateway) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.courseID = courseID
	a.weekID = weekID
	a.gateway = gateway
	a.lastActive = a.now()
}

func (a *Attempt) inputs(quiz domain.QuizDefinition) Inputs {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Inputs{Quiz: quiz, CourseID: a.courseID, WeekID: a.weekID}
}

func (a *Attempt) touch() {
	a.mu.Lock()
	a.lastActive = a.now()
	a.mu.Unlock()
}

func (a *Attempt) idleSince(cutoff time.Time) bool {
	a.mu.RLock()
	quiet := len(a.subscribers) == 0 && a.lastActive.Before(cutoff)
	a.mu.RUnlock()
	if !quiet {
		return false
	}
	return a.machine.State() != StateSubmitting && !a.machine.TimerRunning()
}

func (a *Attempt) close() {
	a.machine.Close()
	a.mu.Lock()
	for ch := range a.subscribers {
		delete(a.subscribers, ch)
		close(ch)
	}
	a.mu.Unlock()
}

func (a *Attempt) subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	a.mu.Lock()
	snap := a.machine.Snapshot()
	if snap.Seq > a.lastSeq {
		a.lastSeq = snap.Seq
	}
	ch <- snap
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// broadcast drops the oldest queued snapshot for slow listeners rather than blocking the machine.
// Snapshots older than one already delivered are discarded, since notifications race outside the machine lock.
func (a *Attempt) broadcast(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if snap.Seq <= a.lastSeq {
		return
	}
	a.lastSeq = snap.Seq
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
