package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quiz-attempt-service/internal/domain"
)

const weekOneQuiz = `
id: week-1-quiz
title: Week 1 review
settings:
  shuffle_questions: true
  time_limit_minutes: 10
  passing_score_percent: 70
  allow_retake: true
  show_correct_answers: true
questions:
  - id: q1
    kind: single_choice
    prompt: Which keyword declares a constant?
    required: true
    options:
      - id: a
        text: var
      - id: b
        text: const
        correct: true
  - id: q2
    kind: multi_choice
    prompt: Pick the reference types
    options:
      - id: a
        text: map
        correct: true
      - id: b
        text: int
      - id: c
        text: slice
        correct: true
  - id: q3
    kind: long_text
    prompt: Explain goroutines
    canonical_answer: lightweight threads
`

func TestLoadQuizFromYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "week-1-quiz.yaml"), []byte(weekOneQuiz), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loader := NewQuizLoader(dir)

	quiz, err := loader.LoadQuiz(context.Background(), "week-1-quiz")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(quiz.Questions) != 3 || !quiz.Settings.Timed() || quiz.Settings.PassingScorePercent != 70 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.Questions[1].Kind != domain.KindMultiChoice || !quiz.Questions[1].Options[2].Correct {
		t.Fatalf("options not decoded: %+v", quiz.Questions[1])
	}
	if quiz.Questions[2].CanonicalAnswer != "lightweight threads" {
		t.Fatalf("canonical answer not decoded")
	}
}

func TestLoadQuizRejectsUnknownAndTraversal(t *testing.T) {
	loader := NewQuizLoader(t.TempDir())
	for _, id := range []string{"missing", "../etc/passwd", ""} {
		if _, err := loader.LoadQuiz(context.Background(), id); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("%q: expected not found, got %v", id, err)
		}
	}
}

func TestParseRejectsInvalidQuiz(t *testing.T) {
	_, err := Parse([]byte("id: broken\nquestions:\n  - id: q1\n    kind: essay\n"))
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
}

func TestShippedQuizzesLoad(t *testing.T) {
	loader := NewQuizLoader(filepath.Join("..", "..", "..", "quizzes"))
	quiz, err := loader.LoadQuiz(context.Background(), "week-1-recap")
	if err != nil {
		t.Fatalf("load shipped quiz: %v", err)
	}
	if !quiz.Settings.Timed() || len(quiz.Questions) != 3 || quiz.Questions[2].Kind != domain.KindLongText {
		t.Fatalf("unexpected shipped quiz %+v", quiz)
	}
}
