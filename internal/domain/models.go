package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// QuestionKind enumerates how a question is answered.
type QuestionKind string

const (
	KindSingleChoice QuestionKind = "single_choice"
	KindMultiChoice  QuestionKind = "multi_choice"
	KindShortText    QuestionKind = "short_text"
	KindLongText     QuestionKind = "long_text"
)

// IsChoice reports whether answers reference option ids.
func (k QuestionKind) IsChoice() bool {
	return k == KindSingleChoice || k == KindMultiChoice
}

// Option represents a possible answer for a choice question.
type Option struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question is one evaluable unit of a quiz.
type Question struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Kind        QuestionKind `json:"kind" yaml:"kind" validate:"required,oneof=single_choice multi_choice short_text long_text"`
	Prompt      string       `json:"prompt" yaml:"prompt"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Required    bool         `json:"required" yaml:"required"`
	Options     []Option     `json:"options,omitempty" yaml:"options" validate:"dive"`
	// CanonicalAnswer is reference text for free-text questions; grading ignores it.
	CanonicalAnswer string `json:"canonicalAnswer,omitempty" yaml:"canonical_answer"`
}

// Settings controls timing, ordering and retake policy.
type Settings struct {
	ShuffleQuestions    bool `json:"shuffleQuestions" yaml:"shuffle_questions"`
	TimeLimitMinutes    int  `json:"timeLimitMinutes,omitempty" yaml:"time_limit_minutes" validate:"gte=0"`
	PassingScorePercent int  `json:"passingScorePercent" yaml:"passing_score_percent" validate:"gte=0,lte=100"`
	AllowRetake         bool `json:"allowRetake" yaml:"allow_retake"`
	ShowCorrectAnswers  bool `json:"showCorrectAnswers" yaml:"show_correct_answers"`
}

// Timed reports whether the quiz runs against a countdown.
func (s Settings) Timed() bool {
	return s.TimeLimitMinutes > 0
}

// QuizDefinition is a quiz as authored. A new ID means a different quiz.
type QuizDefinition struct {
	ID          string     `json:"id" yaml:"id" validate:"required"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"dive"`
	Settings    Settings   `json:"settings" yaml:"settings"`
}

// Question looks up a question by id.
func (q QuizDefinition) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Answer holds either a single value (single choice, free text) or a set of
// option ids (multi choice). Multi distinguishes an emptied set from a single value.
type Answer struct {
	Value  string
	Values []string
	Multi  bool
}

// SingleAnswer builds a scalar answer.
func SingleAnswer(v string) Answer {
	return Answer{Value: v}
}

// MultiAnswer builds a set answer.
func MultiAnswer(values ...string) Answer {
	return Answer{Values: append([]string(nil), values...), Multi: true}
}

// Empty reports whether the answer would fail a required check.
func (a Answer) Empty() bool {
	if a.Multi {
		return len(a.Values) == 0
	}
	return strings.TrimSpace(a.Value) == ""
}

// MarshalJSON encodes scalars as strings and sets as arrays.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		values := a.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(values)
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err == nil {
		*a = MultiAnswer(values...)
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*a = SingleAnswer(value)
	return nil
}

// AnswerSet maps question id to the student's answer.
type AnswerSet map[string]Answer

// Clone returns a deep copy.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for id, answer := range s {
		if answer.Multi {
			answer.Values = append([]string(nil), answer.Values...)
		}
		out[id] = answer
	}
	return out
}

// GradingResult is derived locally and never persisted.
type GradingResult struct {
	Score       int             `json:"score"`
	Passed      bool            `json:"passed"`
	Correctness map[string]bool `json:"correctness"`
}

// SubmissionRecord is a prior attempt as stored by the remote service.
type SubmissionRecord struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	Answers     AnswerSet `json:"answers"`
	Score       *int      `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SubmitPayload is the body sent to the submission service.
type SubmitPayload struct {
	Answers  AnswerSet `json:"answers"`
	CourseID string    `json:"courseId"`
	WeekID   string    `json:"weekId"`
}

// SubmitReceipt is the submission service's acknowledgement.
type SubmitReceipt struct {
	ID     string `json:"id"`
	Score  *int   `json:"score"`
	Status string `json:"status"`
}

const (
	// SubmissionStatusSubmitted marks an attempt awaiting any manual grading.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded marks an attempt whose score is final.
	SubmissionStatusGraded = "graded"
)
