package cli

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/config"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/sqlite"
)

type submissionGrader interface {
	SetScore(ctx context.Context, submissionID string, score int) error
}

// NewGradeCmd records an instructor's score for a stored submission.
func NewGradeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "grade <submission-id> <score>",
		Short: "Record a manual score (0-100) for a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "parse score %q", args[1])
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runGrade(cmd.Context(), cfg, args[0], score, config.NewLogger(cfg))
		},
	}
}

func runGrade(ctx context.Context, cfg config.Config, submissionID string, score int, log logrus.FieldLogger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if score < 0 || score > 100 {
		return errors.Errorf("score %d out of range 0-100", score)
	}

	var grader submissionGrader
	switch cfg.Submissions.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		grader = store
	case "postgres":
		if cfg.Postgres.URL == "" {
			return errors.New("submissions.backend=postgres requires postgres.url")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pool.Close()
		grader = pgstore.NewSubmissionStore(pool)
	default:
		return errors.Errorf("submissions.backend %q does not keep gradable submissions", cfg.Submissions.Backend)
	}

	if err := grader.SetScore(ctx, submissionID, score); err != nil {
		return errors.Wrapf(err, "grade submission %s", submissionID)
	}
	log.WithFields(logrus.Fields{"submission_id": submissionID, "score": score}).Info("submission graded")
	return nil
}
