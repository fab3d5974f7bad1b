package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"quiz-attempt-service/internal/domain"
)

// SubmissionStore persists submissions in the quiz_submissions table.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) SaveSubmission(ctx context.Context, userID, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	answers, err := json.Marshal(payload.Answers)
	if err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "marshal answers")
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_submissions (id, quiz_id, user_id, course_id, week_id, answers, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, quizID, userID, payload.CourseID, payload.WeekID, answers, domain.SubmissionStatusSubmitted, time.Now().UTC())
	if err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "insert submission")
	}
	return domain.SubmitReceipt{ID: id, Status: domain.SubmissionStatusSubmitted}, nil
}

func (s *SubmissionStore) FindSubmission(ctx context.Context, userID, quizID string) (domain.SubmissionRecord, error) {
	var (
		record domain.SubmissionRecord
		raw    []byte
		score  *int32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, quiz_id, answers, score, submitted_at
		FROM quiz_submissions
		WHERE user_id=$1 AND quiz_id=$2
		ORDER BY submitted_at DESC
		LIMIT 1`, userID, quizID).Scan(&record.ID, &record.QuizID, &raw, &score, &record.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubmissionRecord{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.SubmissionRecord{}, errors.Wrap(err, "load submission")
	}
	if err := json.Unmarshal(raw, &record.Answers); err != nil {
		return domain.SubmissionRecord{}, errors.Wrap(err, "unmarshal answers")
	}
	if score != nil {
		v := int(*score)
		record.Score = &v
	}
	return record, nil
}

// SetScore records a manually assigned score on a submission.
func (s *SubmissionStore) SetScore(ctx context.Context, submissionID string, score int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_submissions SET score=$1, status=$2 WHERE id=$3`,
		score, domain.SubmissionStatusGraded, submissionID)
	if err != nil {
		return errors.Wrap(err, "update score")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}
