package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

const tokensTable = "portal.provisioning_tokens"

var tokenColumns = []string{
	"id",
	"account_id",
	"token_hash",
	"issued_at",
	"expires_at",
	"consumed_at",
	"revoked_at",
}

// TokenRepository implements port.ProvisioningTokenRepository using PostgreSQL tables.
type TokenRepository struct {
	db      pgTxStarter
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(db pgTxStarter) *TokenRepository {
	return &TokenRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Issue revokes outstanding tokens for the account and inserts the new one in a
// single transaction. The account row is locked first, so issuing serializes with
// redemption and with other issues for the same account.
func (r *TokenRepository) Issue(ctx context.Context, token domain.ProvisioningToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	revokeSQL, revokeArgs, err := r.builder.Update(tokensTable).
		Set("revoked_at", token.IssuedAt).
		Where(squirrel.Eq{"account_id": token.AccountID}).
		Where("consumed_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke tokens sql: %w", err)
	}

	insertSQL, insertArgs, err := r.builder.Insert(tokensTable).
		Columns(tokenColumns...).
		Values(
			token.ID,
			token.AccountID,
			token.TokenHash,
			token.IssuedAt,
			token.ExpiresAt,
			token.ConsumedAt,
			token.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin issue token tx: %w", err)
	}
	defer rollback(ctx, tx)

	credentialSet, err := r.lockAccount(ctx, tx, token.AccountID)
	if err != nil {
		return err
	}
	if credentialSet {
		return repository.ErrAccountActive
	}

	if _, err := tx.Exec(ctx, revokeSQL, revokeArgs...); err != nil {
		return fmt.Errorf("revoke outstanding tokens: %w", err)
	}
	if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit issue token tx: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by its hashed value.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*domain.ProvisioningToken, error) {
	stmt, args, err := r.builder.Select(tokenColumns...).
		From(tokensTable).
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}
	return scanToken(r.db.QueryRow(ctx, stmt, args...))
}

// Latest returns the most recently issued token for the account.
func (r *TokenRepository) Latest(ctx context.Context, accountID string) (*domain.ProvisioningToken, error) {
	stmt, args, err := r.builder.Select(tokenColumns...).
		From(tokensTable).
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("issued_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select latest token sql: %w", err)
	}
	return scanToken(r.db.QueryRow(ctx, stmt, args...))
}

// Redeem marks the token consumed and activates the bound account. The account
// row is locked before the token row, matching Issue, and both updates are
// conditional, so of two concurrent redemptions only one commits.
func (r *TokenRepository) Redeem(ctx context.Context, hash, credentialHash string, at time.Time) (string, error) {
	ownerSQL, ownerArgs, err := r.builder.Select("account_id").
		From(tokensTable).
		Where(squirrel.Eq{"token_hash": hash}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build token owner sql: %w", err)
	}

	consumeSQL, consumeArgs, err := r.builder.Update(tokensTable).
		Set("consumed_at", at).
		Where(squirrel.Eq{"token_hash": hash}).
		Where("consumed_at IS NULL").
		Where("revoked_at IS NULL").
		Where(squirrel.Gt{"expires_at": at}).
		Suffix("RETURNING account_id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build consume token sql: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin redeem tx: %w", err)
	}
	defer rollback(ctx, tx)

	var owner string
	if err := tx.QueryRow(ctx, ownerSQL, ownerArgs...).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("lookup token owner: %w", err)
	}
	credentialSet, err := r.lockAccount(ctx, tx, owner)
	if err != nil {
		return "", err
	}
	if credentialSet {
		return "", repository.ErrNotFound
	}

	var accountID string
	if err := tx.QueryRow(ctx, consumeSQL, consumeArgs...).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("consume token: %w", err)
	}

	activateSQL, activateArgs, err := r.builder.Update(accountsTable).
		Set("credential_hash", credentialHash).
		Set("credential_set", true).
		Set("activated_at", at).
		Where(squirrel.Eq{"id": accountID}).
		Where(squirrel.Eq{"credential_set": false}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build activate account sql: %w", err)
	}

	ct, err := tx.Exec(ctx, activateSQL, activateArgs...)
	if err != nil {
		return "", fmt.Errorf("activate account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return "", repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit redeem tx: %w", err)
	}
	return accountID, nil
}

// lockAccount takes the row lock on the account and reports whether it already
// holds a credential.
func (r *TokenRepository) lockAccount(ctx context.Context, tx pgx.Tx, accountID string) (bool, error) {
	stmt, args, err := r.builder.Select("credential_set").
		From(accountsTable).
		Where(squirrel.Eq{"id": accountID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lock account sql: %w", err)
	}

	var credentialSet bool
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&credentialSet); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, repository.ErrNotFound
		}
		return false, fmt.Errorf("lock account: %w", err)
	}
	return credentialSet, nil
}

func scanToken(row pgx.Row) (*domain.ProvisioningToken, error) {
	var (
		token      domain.ProvisioningToken
		consumedAt sql.NullTime
		revokedAt  sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&consumedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan provisioning token: %w", err)
	}

	if consumedAt.Valid {
		t := consumedAt.Time
		token.ConsumedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	return &token, nil
}

var _ port.ProvisioningTokenRepository = (*TokenRepository)(nil)
