// Package grading scores a set of answers against quiz content.
package grading

import (
	"math"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// Grade computes per-question correctness and an aggregate 0-100 score.
// Free-text questions are never auto-graded and count as incorrect.
// A quiz with no questions scores 100.
func Grade(questions []domain.Question, answers domain.AnswerSet, passingScorePercent int) domain.GradingResult {
	correctness := make(map[string]bool, len(questions))
	correct := 0
	for _, q := range questions {
		ok := gradeQuestion(q, answers[q.ID])
		correctness[q.ID] = ok
		if ok {
			correct++
		}
	}

	score := 100
	if len(questions) > 0 {
		score = int(math.Round(100 * float64(correct) / float64(len(questions))))
	}
	return domain.GradingResult{
		Score:       score,
		Passed:      score >= passingScorePercent,
		Correctness: correctness,
	}
}

func gradeQuestion(q domain.Question, answer domain.Answer) bool {
	switch q.Kind {
	case domain.KindSingleChoice:
		key := correctOptions(q)
		if len(key) != 1 || answer.Multi {
			return false
		}
		return answer.Value == key[0]
	case domain.KindMultiChoice:
		key := correctOptions(q)
		if len(key) == 0 || !answer.Multi {
			return false
		}
		return sameSet(answer.Values, key)
	default:
		return false
	}
}

func correctOptions(q domain.Question) []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// sameSet compares as sorted sequences, so duplicates in the submission do not match.
func sameSet(submitted, key []string) bool {
	if len(submitted) != len(key) {
		return false
	}
	a := append([]string(nil), submitted...)
	b := append([]string(nil), key...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
