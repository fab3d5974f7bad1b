// Package sqlite keeps a local submission ledger for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"quiz-attempt-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_submissions (
	id           TEXT PRIMARY KEY,
	quiz_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	course_id    TEXT NOT NULL,
	week_id      TEXT NOT NULL,
	answers      TEXT NOT NULL,
	score        INTEGER,
	status       TEXT NOT NULL DEFAULT 'submitted',
	submitted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_submissions_user_quiz_idx ON quiz_submissions (user_id, quiz_id, submitted_at);
`

// SubmissionStore persists submissions in a SQLite file.
type SubmissionStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type submissionRow struct {
	ID          string        `db:"id"`
	QuizID      string        `db:"quiz_id"`
	Answers     string        `db:"answers"`
	Score       sql.NullInt64 `db:"score"`
	SubmittedAt time.Time     `db:"submitted_at"`
}

// Open connects to the database at path and ensures the schema exists.
func Open(path string) (*SubmissionStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "connect sqlite")
	}
	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &SubmissionStore{db: db, now: time.Now}, nil
}

func (s *SubmissionStore) Close() error {
	return s.db.Close()
}

func (s *SubmissionStore) SaveSubmission(ctx context.Context, userID, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	answers, err := json.Marshal(payload.Answers)
	if err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "marshal answers")
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quiz_submissions (id, quiz_id, user_id, course_id, week_id, answers, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, quizID, userID, payload.CourseID, payload.WeekID, string(answers), domain.SubmissionStatusSubmitted, s.now().UTC())
	if err != nil {
		return domain.SubmitReceipt{}, errors.Wrap(err, "insert submission")
	}
	return domain.SubmitReceipt{ID: id, Status: domain.SubmissionStatusSubmitted}, nil
}

func (s *SubmissionStore) FindSubmission(ctx context.Context, userID, quizID string) (domain.SubmissionRecord, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, quiz_id, answers, score, submitted_at
		FROM quiz_submissions
		WHERE user_id = ? AND quiz_id = ?
		ORDER BY submitted_at DESC
		LIMIT 1`, userID, quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SubmissionRecord{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.SubmissionRecord{}, errors.Wrap(err, "load submission")
	}

	record := domain.SubmissionRecord{ID: row.ID, QuizID: row.QuizID, SubmittedAt: row.SubmittedAt}
	if err := json.Unmarshal([]byte(row.Answers), &record.Answers); err != nil {
		return domain.SubmissionRecord{}, errors.Wrap(err, "unmarshal answers")
	}
	if row.Score.Valid {
		score := int(row.Score.Int64)
		record.Score = &score
	}
	return record, nil
}

// SetScore records a manually assigned score on a submission.
func (s *SubmissionStore) SetScore(ctx context.Context, submissionID string, score int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_submissions SET score = ?, status = ? WHERE id = ?`,
		score, domain.SubmissionStatusGraded, submissionID)
	if err != nil {
		return errors.Wrap(err, "update score")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}
