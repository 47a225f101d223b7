package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

var submissionRowColumns = []string{
	"id", "title", "body", "contact_email", "author", "anonymous", "status", "created_at", "decided_at",
}

func TestSubmissionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)

	createdAt := time.Now().UTC()
	author := "Maria"
	submission := domain.Submission{
		ID:           "sub-1",
		Title:        "First Step",
		Body:         "It began on a Tuesday.",
		ContactEmail: "maria@example.org",
		Author:       &author,
		Status:       domain.SubmissionStatusNew,
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO portal\.submissions`).
		WithArgs(
			submission.ID,
			submission.Title,
			submission.Body,
			submission.ContactEmail,
			submission.Author,
			false,
			"new",
			createdAt,
			submission.DecidedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), submission); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmissionRepository_TransitionStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)

	createdAt := time.Now().UTC().Add(-time.Hour)
	decidedAt := time.Now().UTC()

	rows := pgxmock.NewRows(submissionRowColumns).AddRow(
		"sub-1", "First Step", "body", "maria@example.org", nil, true, "approved", createdAt, decidedAt,
	)

	mock.ExpectQuery(`UPDATE portal\.submissions SET status = \$1, decided_at = \$2 WHERE id = \$3 AND status = \$4 RETURNING`).
		WithArgs("approved", decidedAt, "sub-1", "new").
		WillReturnRows(rows)

	submission, err := repo.TransitionStatus(context.Background(), "sub-1", domain.SubmissionStatusNew, domain.SubmissionStatusApproved, decidedAt)
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if submission.Status != domain.SubmissionStatusApproved {
		t.Fatalf("expected approved status, got %s", submission.Status)
	}
	if submission.DecidedAt == nil || !submission.DecidedAt.Equal(decidedAt) {
		t.Fatalf("expected decided_at to be populated")
	}
	if submission.Author != nil {
		t.Fatalf("expected nil author for null column")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmissionRepository_TransitionStatusMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)
	at := time.Now().UTC()

	mock.ExpectQuery(`UPDATE portal\.submissions`).
		WithArgs("rejected", at, "sub-1", "new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT 1 FROM portal\.submissions`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

	_, err = repo.TransitionStatus(context.Background(), "sub-1", domain.SubmissionStatusNew, domain.SubmissionStatusRejected, at)
	if !errors.Is(err, repository.ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmissionRepository_TransitionStatusMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)
	at := time.Now().UTC()

	mock.ExpectQuery(`UPDATE portal\.submissions`).
		WithArgs("approved", at, "missing", "new").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT 1 FROM portal\.submissions`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.TransitionStatus(context.Background(), "missing", domain.SubmissionStatusNew, domain.SubmissionStatusApproved, at)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmissionRepository_ListByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(submissionRowColumns).
		AddRow("sub-2", "Second", "b", "b@example.org", "Rob", false, "new", now, nil).
		AddRow("sub-1", "First", "a", "a@example.org", nil, true, "new", now.Add(-time.Minute), nil)

	mock.ExpectQuery(`SELECT .* FROM portal\.submissions WHERE status = \$1 ORDER BY created_at DESC, id LIMIT 10`).
		WithArgs("new").
		WillReturnRows(rows)

	status := domain.SubmissionStatusNew
	submissions, err := repo.List(context.Background(), port.SubmissionFilter{Status: &status, Limit: 10})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(submissions))
	}
	if submissions[0].Author == nil || *submissions[0].Author != "Rob" {
		t.Fatalf("expected author to be scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubmissionRepository_DeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubmissionRepository(mock)

	mock.ExpectExec(`DELETE FROM portal\.submissions WHERE id = \$1`).
		WithArgs("sub-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "sub-9"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
