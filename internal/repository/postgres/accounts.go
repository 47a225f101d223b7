package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

const accountsTable = "portal.accounts"

var accountColumns = []string{
	"id",
	"username",
	"email",
	"first_name",
	"last_name",
	"display_name",
	"is_admin",
	"credential_set",
	"credential_hash",
	"created_at",
	"activated_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row. Username and email uniqueness is enforced
// case-insensitively by the schema.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	var credentialHash any
	if account.CredentialHash != "" {
		credentialHash = account.CredentialHash
	}

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Username,
			account.Email,
			account.FirstName,
			account.LastName,
			account.DisplayName,
			account.IsAdmin,
			account.CredentialSet,
			credentialHash,
			account.CreatedAt,
			account.ActivatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByLogin retrieves an account by username or email, ignoring case.
func (r *AccountRepository) GetByLogin(ctx context.Context, identifier string) (*domain.Account, error) {
	value := strings.ToLower(strings.TrimSpace(identifier))
	return r.getOne(ctx, squirrel.Or{
		squirrel.Expr("lower(username) = ?", value),
		squirrel.Expr("lower(email) = ?", value),
	})
}

func (r *AccountRepository) getOne(ctx context.Context, pred squirrel.Sqlizer) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From(accountsTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		account        domain.Account
		credentialHash sql.NullString
		activatedAt    sql.NullTime
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.DisplayName,
		&account.IsAdmin,
		&account.CredentialSet,
		&credentialHash,
		&account.CreatedAt,
		&activatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if credentialHash.Valid {
		account.CredentialHash = credentialHash.String
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		account.ActivatedAt = &t
	}
	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
