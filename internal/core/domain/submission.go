package domain

import "time"

// SubmissionStatus enumerates the moderation states of a story submission.
type SubmissionStatus string

const (
	SubmissionStatusNew      SubmissionStatus = "new"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// AnonymousAuthor is the author shown for submissions flagged anonymous.
const AnonymousAuthor = "Anonymous"

// Valid reports whether the status is one of the three known values.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusNew, SubmissionStatusApproved, SubmissionStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted from the status.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusApproved || s == SubmissionStatusRejected
}

// CanTransition reports whether moving from s to next is a legal moderation transition.
// Only new -> approved and new -> rejected are allowed.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	return s == SubmissionStatusNew && next.Terminal()
}

// Submission mirrors the persisted representation of a visitor story.
type Submission struct {
	ID           string
	Title        string
	Body         string
	ContactEmail string
	Author       *string
	Anonymous    bool
	Status       SubmissionStatus
	CreatedAt    time.Time
	DecidedAt    *time.Time
}

// EffectiveAuthor returns the author to display, honouring the anonymity flag
// regardless of the stored author value.
func (s Submission) EffectiveAuthor() string {
	if s.Anonymous || s.Author == nil || *s.Author == "" {
		return AnonymousAuthor
	}
	return *s.Author
}

// Redacted returns a copy suitable for read paths: the stored author is dropped
// when the submission is anonymous.
func (s Submission) Redacted() Submission {
	out := s
	if out.Anonymous {
		out.Author = nil
	}
	return out
}
