package domain

import "time"

// ArticleSeed carries the read-only values handed to the publishing collaborator
// when a submission is converted to a blog post.
type ArticleSeed struct {
	SubmissionID string
	Title        string
	Body         string
	Author       string
}

// ArticleDraft is the blog post created from a seed.
type ArticleDraft struct {
	ID           string
	Title        string
	Body         string
	Author       string
	SubmissionID string
	CreatedAt    time.Time
}
