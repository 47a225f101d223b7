package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
)

// ArticleRepository stores blog post drafts seeded from submissions.
type ArticleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewArticleRepository constructs an article draft repository.
func NewArticleRepository(exec pgExecutor) *ArticleRepository {
	return &ArticleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PublishDraft inserts a new draft and returns its identifier.
func (r *ArticleRepository) PublishDraft(ctx context.Context, seed domain.ArticleSeed) (string, error) {
	id := uuid.NewString()

	var submissionID any
	if seed.SubmissionID != "" {
		submissionID = seed.SubmissionID
	}

	stmt, args, err := r.builder.Insert("portal.article_drafts").
		Columns("id", "title", "body", "author", "submission_id", "created_at").
		Values(id, seed.Title, seed.Body, seed.Author, submissionID, r.now()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert article draft sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert article draft: %w", err)
	}
	return id, nil
}

var _ port.ArticlePublisher = (*ArticleRepository)(nil)
