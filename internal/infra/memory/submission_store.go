package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-attempt-service/internal/domain"
)

// SubmissionStore keeps submissions in process memory; the latest one per student and quiz wins.
type SubmissionStore struct {
	now func() time.Time

	mu      sync.RWMutex
	records map[string]domain.SubmissionRecord
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		now:     time.Now,
		records: make(map[string]domain.SubmissionRecord),
	}
}

func (s *SubmissionStore) SaveSubmission(_ context.Context, userID, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	record := domain.SubmissionRecord{
		ID:          uuid.NewString(),
		QuizID:      quizID,
		Answers:     payload.Answers.Clone(),
		SubmittedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.records[key(userID, quizID)] = record
	s.mu.Unlock()
	return domain.SubmitReceipt{ID: record.ID, Status: domain.SubmissionStatusSubmitted}, nil
}

func (s *SubmissionStore) FindSubmission(_ context.Context, userID, quizID string) (domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key(userID, quizID)]
	if !ok {
		return domain.SubmissionRecord{}, domain.ErrSubmissionNotFound
	}
	record.Answers = record.Answers.Clone()
	return record, nil
}

func key(userID, quizID string) string {
	return userID + "|" + quizID
}
