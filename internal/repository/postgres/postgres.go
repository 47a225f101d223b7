package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ritaorion/district5b-portal/internal/repository/postgres/migrations"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Submissions *SubmissionRepository
	Accounts    *AccountRepository
	Tokens      *TokenRepository
	Articles    *ArticleRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Submissions: NewSubmissionRepository(pool),
		Accounts:    NewAccountRepository(pool),
		Tokens:      NewTokenRepository(pool),
		Articles:    NewArticleRepository(pool),
	}
}

// Migrate applies the embedded goose migrations through a database/sql view of the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
