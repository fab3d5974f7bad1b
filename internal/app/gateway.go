package app

import (
	"context"

	"github.com/pkg/errors"

	"quiz-attempt-service/internal/domain"
)

// SubmissionGateway is the boundary to the remote grading and record-keeping service
// as seen by one student.
type SubmissionGateway interface {
	Submit(ctx context.Context, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error)
	// FetchMySubmission returns nil, nil when the student has not submitted the quiz.
	FetchMySubmission(ctx context.Context, quizID string) (*domain.SubmissionRecord, error)
}

// SubmissionStore persists submissions for all students.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, userID, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error)
	// FindSubmission returns the latest submission or domain.ErrSubmissionNotFound.
	FindSubmission(ctx context.Context, userID, quizID string) (domain.SubmissionRecord, error)
}

// GatewayFactory builds the gateway for a student. Token is the caller's bearer
// credential, forwarded by gateways that call out over HTTP.
type GatewayFactory func(userID, token string) SubmissionGateway

// StoreGateways adapts a SubmissionStore into a GatewayFactory.
func StoreGateways(store SubmissionStore) GatewayFactory {
	return func(userID, _ string) SubmissionGateway {
		return ForStudent(store, userID)
	}
}

// ForStudent scopes a SubmissionStore to one student.
func ForStudent(store SubmissionStore, userID string) SubmissionGateway {
	return &studentGateway{store: store, userID: userID}
}

type studentGateway struct {
	store  SubmissionStore
	userID string
}

func (g *studentGateway) Submit(ctx context.Context, quizID string, payload domain.SubmitPayload) (domain.SubmitReceipt, error) {
	return g.store.SaveSubmission(ctx, g.userID, quizID, payload)
}

func (g *studentGateway) FetchMySubmission(ctx context.Context, quizID string) (*domain.SubmissionRecord, error) {
	record, err := g.store.FindSubmission(ctx, g.userID, quizID)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
