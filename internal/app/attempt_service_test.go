package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/clock"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type serviceFixture struct {
	svc     *app.AttemptService
	gw      *stubGateway
	tokens  []string
	now     time.Time
	sched   *clock.Fake
	invalid *recordingInvalidator
}

func newFixture(t *testing.T, quizzes ...domain.QuizDefinition) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		gw:      &stubGateway{},
		now:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		sched:   clock.NewFake(),
		invalid: &recordingInvalidator{},
	}
	byID := make(map[string]domain.QuizDefinition, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
	}
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(byID), time.Minute)
	factory := func(_, token string) app.SubmissionGateway {
		f.tokens = append(f.tokens, token)
		return f.gw
	}
	f.svc = app.NewAttemptService(memory.NewAttemptStore(), repo, factory,
		app.WithScheduler(f.sched),
		app.WithClock(func() time.Time { return f.now }),
		app.WithSeed(1),
		app.WithInvalidator(f.invalid),
	)
	return f
}

func open(t *testing.T, f *serviceFixture, quizID, userID string) app.Snapshot {
	t.Helper()
	snap, err := f.svc.Open(context.Background(), app.OpenRequest{
		QuizID: quizID, UserID: userID, CourseID: "course-1", WeekID: "week-1", Token: "tok-" + userID,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return snap
}

func TestOpenWithoutPriorStartsTaking(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	snap := open(t, f, "quiz-1", "u1")
	if snap.State != app.StateTaking || !snap.ContextReady {
		t.Fatalf("expected taking with context, got %+v", snap)
	}
	if len(f.tokens) != 1 || f.tokens[0] != "tok-u1" {
		t.Fatalf("expected gateway built with caller token, got %v", f.tokens)
	}
}

func TestOpenWithPriorShowsResults(t *testing.T) {
	score := 80
	f := newFixture(t, twoQuestionQuiz("quiz-1", 5))
	f.gw.prior = &domain.SubmissionRecord{
		ID:      "s1",
		QuizID:  "quiz-1",
		Answers: domain.AnswerSet{"q1": domain.SingleAnswer("x"), "q2": domain.SingleAnswer("z")},
		Score:   &score,
	}

	snap := open(t, f, "quiz-1", "u1")
	if snap.State != app.StateResults || snap.Result == nil || snap.Result.Score != 80 {
		t.Fatalf("expected results with server score, got %+v", snap)
	}
	if snap.Answers["q1"].Value != "x" {
		t.Fatalf("expected prior answers shown, got %+v", snap.Answers)
	}
}

func TestOpenTreatsFetchFailureAsNoPrior(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 5))
	f.gw.fetchErr = errors.New("submission service unavailable")

	snap := open(t, f, "quiz-1", "u1")
	if snap.State != app.StateIntro {
		t.Fatalf("expected intro for a timed quiz, got %s", snap.State)
	}
}

func TestOpenUnknownQuiz(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Open(context.Background(), app.OpenRequest{QuizID: "nope", UserID: "u1"})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestReconnectReattachesToSameAttempt(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	open(t, f, "quiz-1", "u1")
	if _, err := f.svc.SetAnswer(context.Background(), "quiz-1", "u1", "q1", "x", true); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	snap := open(t, f, "quiz-1", "u1")
	if snap.State != app.StateTaking || snap.Answers["q1"].Value != "x" {
		t.Fatalf("expected answers kept across reconnect, got %+v", snap)
	}

	other := open(t, f, "quiz-1", "u2")
	if len(other.Answers) != 0 {
		t.Fatalf("attempts leaked between students: %+v", other.Answers)
	}
}

func TestActionsRequireOpenAttempt(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	ctx := context.Background()
	if _, err := f.svc.Start(ctx, "quiz-1", "u1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
	if _, err := f.svc.Snapshot("quiz-1", "u1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
	if _, _, err := f.svc.Subscribe(ctx, "quiz-1", "u1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	open(t, f, "quiz-1", "u1")

	updates, cancel, err := f.svc.Subscribe(context.Background(), "quiz-1", "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := <-updates
	if first.State != app.StateTaking {
		t.Fatalf("expected current snapshot first, got %s", first.State)
	}

	if _, err := f.svc.SetAnswer(context.Background(), "quiz-1", "u1", "q1", "x", true); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	select {
	case snap := <-updates:
		if snap.Answers["q1"].Value != "x" {
			t.Fatalf("expected answer in update, got %+v", snap.Answers)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update after answer")
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestSubmitInvalidatesCachedPrior(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	open(t, f, "quiz-1", "u1")
	ctx := context.Background()
	if _, err := f.svc.SetAnswer(ctx, "quiz-1", "u1", "q1", "x", true); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	snap, err := f.svc.Submit(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.State != app.StateResults || snap.Result.Score != 50 {
		t.Fatalf("expected graded results, got %+v", snap)
	}
	if got := f.invalid.calls(); len(got) != 1 || got[0] != "u1/quiz-1" {
		t.Fatalf("expected one invalidation, got %v", got)
	}

	if _, err := f.svc.Retake(ctx, "quiz-1", "u1"); err == nil {
		t.Fatalf("retake should be refused when the quiz forbids it")
	}
	if got := f.invalid.calls(); len(got) != 1 {
		t.Fatalf("a refused retake must not invalidate again, got %v", got)
	}
}

func TestRefreshPicksUpSubmissionMadeElsewhere(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	open(t, f, "quiz-1", "u1")

	f.gw.mu.Lock()
	f.gw.prior = &domain.SubmissionRecord{ID: "other-tab", QuizID: "quiz-1", Answers: domain.AnswerSet{"q1": domain.SingleAnswer("x"), "q2": domain.SingleAnswer("y")}}
	f.gw.mu.Unlock()

	snap, err := f.svc.Refresh(context.Background(), "quiz-1", "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.State != app.StateResults || snap.Result == nil || snap.Result.Score != 100 {
		t.Fatalf("expected results from the new prior, got %+v", snap)
	}
}

func TestTimedAttemptExpiresThroughService(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 1))
	open(t, f, "quiz-1", "u1")
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "quiz-1", "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, _ := f.svc.Snapshot("quiz-1", "u1")
	if snap.RemainingSeconds == nil || *snap.RemainingSeconds != 60 {
		t.Fatalf("expected 60 seconds on the clock, got %v", snap.RemainingSeconds)
	}

	f.sched.Advance(61 * time.Second)
	snap, _ = f.svc.Snapshot("quiz-1", "u1")
	if snap.State != app.StateResults {
		t.Fatalf("expected forced submission on expiry, got %s", snap.State)
	}
	if len(f.gw.submits) != 1 {
		t.Fatalf("expected one forced submission, got %d", len(f.gw.submits))
	}
}

func TestSweepIdleClosesQuietAttempts(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0), twoQuestionQuiz("quiz-2", 10))
	open(t, f, "quiz-1", "u1")
	open(t, f, "quiz-1", "u2")
	open(t, f, "quiz-2", "u3")

	_, cancel, err := f.svc.Subscribe(context.Background(), "quiz-1", "u2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.svc.Start(context.Background(), "quiz-2", "u3"); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.now = f.now.Add(10 * time.Minute)
	if closed := f.svc.SweepIdle(30 * time.Minute); closed != 0 {
		t.Fatalf("nothing is idle yet, closed %d", closed)
	}

	f.now = f.now.Add(time.Hour)
	if closed := f.svc.SweepIdle(30 * time.Minute); closed != 1 {
		t.Fatalf("expected only the unwatched untimed attempt swept, closed %d", closed)
	}
	if _, err := f.svc.Snapshot("quiz-1", "u1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected swept attempt gone, got %v", err)
	}

	cancel()
	f.now = f.now.Add(time.Hour)
	if closed := f.svc.SweepIdle(30 * time.Minute); closed != 1 {
		t.Fatalf("expected the unsubscribed attempt swept, closed %d", closed)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	f := newFixture(t, twoQuestionQuiz("quiz-1", 0))
	open(t, f, "quiz-1", "u1")
	updates, cancel, err := f.svc.Subscribe(context.Background(), "quiz-1", "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates

	f.svc.Close("quiz-1", "u1")
	if _, ok := <-updates; ok {
		t.Fatalf("expected subscription closed")
	}
	if _, err := f.svc.Snapshot("quiz-1", "u1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt forgotten, got %v", err)
	}
}

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, userID+"/"+quizID)
	return nil
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestRefreshReloadsEditedQuiz(t *testing.T) {
	loader := &editableLoader{quiz: twoQuestionQuiz("quiz-1", 0)}
	repo := memory.NewQuizRepository(loader, time.Hour)
	gw := &stubGateway{}
	svc := app.NewAttemptService(memory.NewAttemptStore(), repo,
		func(string, string) app.SubmissionGateway { return gw },
		app.WithScheduler(clock.NewFake()), app.WithSeed(1))

	_, err := svc.Open(context.Background(), app.OpenRequest{QuizID: "quiz-1", UserID: "u1", CourseID: "course-1", WeekID: "week-1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	edited := twoQuestionQuiz("quiz-1", 0)
	edited.Title = "Week 1 check-in (revised)"
	loader.set(edited)

	snap, err := svc.Refresh(context.Background(), "quiz-1", "u1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Title != edited.Title {
		t.Fatalf("expected refreshed title %q, got %q", edited.Title, snap.Title)
	}
	if loader.loads() != 2 {
		t.Fatalf("expected refresh to bypass the cache, got %d loads", loader.loads())
	}
}

type editableLoader struct {
	mu    sync.Mutex
	quiz  domain.QuizDefinition
	count int
}

func (l *editableLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if quizID != l.quiz.ID {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	return l.quiz, nil
}

func (l *editableLoader) set(quiz domain.QuizDefinition) {
	l.mu.Lock()
	l.quiz = quiz
	l.mu.Unlock()
}

func (l *editableLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
