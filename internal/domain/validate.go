package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate checks a quiz definition loaded from an external source.
// Single-choice questions with zero or several correct options are accepted;
// grading treats them as unanswerable.
func Validate(quiz QuizDefinition) error {
	if err := validate.Struct(quiz); err != nil {
		return errors.Wrapf(ErrInvalidQuiz, "%s: %v", quiz.ID, err)
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if _, dup := seen[q.ID]; dup {
			return errors.Wrapf(ErrInvalidQuiz, "%s: duplicate question id %q", quiz.ID, q.ID)
		}
		seen[q.ID] = struct{}{}

		if !q.Kind.IsChoice() {
			continue
		}
		if len(q.Options) == 0 {
			return errors.Wrapf(ErrInvalidQuiz, "%s: question %q has no options", quiz.ID, q.ID)
		}
		optionIDs := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if _, dup := optionIDs[opt.ID]; dup {
				return errors.Wrapf(ErrInvalidQuiz, "%s: %s", quiz.ID, fmt.Sprintf("question %q repeats option %q", q.ID, opt.ID))
			}
			optionIDs[opt.ID] = struct{}{}
		}
	}
	return nil
}
