package domain

import (
	"errors"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSubmissionNotFound is returned by stores when a student has no submission for a quiz.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAttemptNotFound is returned when an action targets an attempt that was never opened.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptClosed is returned after an attempt has been torn down.
	ErrAttemptClosed = errors.New("attempt closed")
	// ErrContextNotReady refuses mutations until both course and week ids are known.
	ErrContextNotReady = errors.New("course and week must be selected before taking the quiz")
	// ErrInvalidTransition refuses an action that the current state does not accept.
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrUnknownQuestion indicates an answer for a question the quiz does not have.
	ErrUnknownQuestion = errors.New("question not found")
	// ErrInvalidQuiz indicates a quiz definition failed validation.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
)

// ValidationError lists required questions left unanswered at submit time.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "please answer all required questions: " + strings.Join(e.Missing, ", ")
}

// SubmissionFailure wraps an error returned by the submission gateway.
type SubmissionFailure struct {
	Err error
}

func (e *SubmissionFailure) Error() string {
	if e.Err == nil {
		return "failed to submit quiz"
	}
	return e.Err.Error()
}

func (e *SubmissionFailure) Unwrap() error {
	return e.Err
}
