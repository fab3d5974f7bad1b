package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestSubmissionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "submissions.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.FindSubmission(ctx, "u1", "quiz-1"); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	first, err := store.SaveSubmission(ctx, "u1", "quiz-1", domain.SubmitPayload{
		Answers:  domain.AnswerSet{"q1": domain.SingleAnswer("a")},
		CourseID: "c1",
		WeekID:   "w1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	now = now.Add(time.Hour)
	second, err := store.SaveSubmission(ctx, "u1", "quiz-1", domain.SubmitPayload{
		Answers:  domain.AnswerSet{"q1": domain.SingleAnswer("b"), "q2": domain.MultiAnswer("x", "y")},
		CourseID: "c1",
		WeekID:   "w1",
	})
	if err != nil {
		t.Fatalf("save retake: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids")
	}

	record, err := store.FindSubmission(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if record.ID != second.ID || record.Answers["q1"].Value != "b" || !record.Answers["q2"].Multi {
		t.Fatalf("expected latest submission, got %+v", record)
	}
	if record.Score != nil {
		t.Fatalf("expected no score before grading")
	}

	if err := store.SetScore(ctx, second.ID, 90); err != nil {
		t.Fatalf("set score: %v", err)
	}
	record, _ = store.FindSubmission(ctx, "u1", "quiz-1")
	if record.Score == nil || *record.Score != 90 {
		t.Fatalf("expected score 90, got %v", record.Score)
	}
	if err := store.SetScore(ctx, "missing", 10); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
