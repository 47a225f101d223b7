package port

import (
	"context"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
)

// ArticlePublisher consumes submission content as seed data for a blog post draft.
type ArticlePublisher interface {
	PublishDraft(ctx context.Context, seed domain.ArticleSeed) (string, error)
}
