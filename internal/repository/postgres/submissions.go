package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

const submissionsTable = "portal.submissions"

var submissionColumns = []string{
	"id",
	"title",
	"body",
	"contact_email",
	"author",
	"anonymous",
	"status",
	"created_at",
	"decided_at",
}

// SubmissionRepository implements port.SubmissionRepository using PostgreSQL.
type SubmissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSubmissionRepository constructs a submission repository over the given executor.
func NewSubmissionRepository(exec pgExecutor) *SubmissionRepository {
	return &SubmissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new submission row.
func (r *SubmissionRepository) Create(ctx context.Context, submission domain.Submission) error {
	stmt, args, err := r.builder.Insert(submissionsTable).
		Columns(submissionColumns...).
		Values(
			submission.ID,
			submission.Title,
			submission.Body,
			submission.ContactEmail,
			submission.Author,
			submission.Anonymous,
			string(submission.Status),
			submission.CreatedAt,
			submission.DecidedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert submission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID loads a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	stmt, args, err := r.builder.Select(submissionColumns...).
		From(submissionsTable).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select submission sql: %w", err)
	}

	submission, err := scanSubmission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// List returns submissions newest first, optionally filtered by status.
func (r *SubmissionRepository) List(ctx context.Context, filter port.SubmissionFilter) ([]domain.Submission, error) {
	query := r.builder.Select(submissionColumns...).
		From(submissionsTable).
		OrderBy("created_at DESC", "id")
	if filter.Status != nil {
		query = query.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list submissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []domain.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return submissions, nil
}

// TransitionStatus moves the submission from one status to another with a single
// conditional update; concurrent callers racing on the same row see exactly one winner.
func (r *SubmissionRepository) TransitionStatus(ctx context.Context, id string, from, to domain.SubmissionStatus, at time.Time) (*domain.Submission, error) {
	stmt, args, err := r.builder.Update(submissionsTable).
		Set("status", string(to)).
		Set("decided_at", at).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": string(from)}).
		Suffix("RETURNING " + joinColumns(submissionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition submission sql: %w", err)
	}

	submission, err := scanSubmission(r.exec.QueryRow(ctx, stmt, args...))
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrStateMismatch
}

// Delete removes the submission permanently.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(submissionsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete submission sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SubmissionRepository) exists(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From(submissionsTable).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build submission exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check submission exists: %w", err)
	}
	return true, nil
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		submission domain.Submission
		author     sql.NullString
		status     string
		decidedAt  sql.NullTime
	)

	if err := row.Scan(
		&submission.ID,
		&submission.Title,
		&submission.Body,
		&submission.ContactEmail,
		&author,
		&submission.Anonymous,
		&status,
		&submission.CreatedAt,
		&decidedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	submission.Status = domain.SubmissionStatus(status)
	if author.Valid {
		value := author.String
		submission.Author = &value
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		submission.DecidedAt = &t
	}
	return &submission, nil
}

var _ port.SubmissionRepository = (*SubmissionRepository)(nil)
