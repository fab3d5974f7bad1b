// Package file loads quiz definitions from YAML files on disk.
package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"quiz-attempt-service/internal/domain"
)

// QuizLoader reads <dir>/<quizID>.yaml (or .yml).
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	if quizID == "" || filepath.Base(quizID) != quizID {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(l.dir, quizID+ext))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return domain.QuizDefinition{}, errors.Wrap(err, "read quiz file")
		}
		return Parse(data)
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}

// Parse decodes and validates a YAML quiz definition.
func Parse(data []byte) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		return domain.QuizDefinition{}, errors.Wrap(err, "unmarshal quiz")
	}
	if err := domain.Validate(quiz); err != nil {
		return domain.QuizDefinition{}, err
	}
	return quiz, nil
}
