package port

import (
	"context"
	"time"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
)

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	Status *domain.SubmissionStatus
	Limit  int
	Offset int
}

// SubmissionRepository persists story submissions and enforces the moderation state machine.
type SubmissionRepository interface {
	Create(ctx context.Context, submission domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]domain.Submission, error)
	// TransitionStatus atomically moves the submission from one status to another.
	// It returns repository.ErrStateMismatch when the stored status is not from,
	// and repository.ErrNotFound when the submission does not exist.
	TransitionStatus(ctx context.Context, id string, from, to domain.SubmissionStatus, at time.Time) (*domain.Submission, error)
	Delete(ctx context.Context, id string) error
}
