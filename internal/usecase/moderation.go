package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

const (
	defaultSubmissionPageSize = 50
	maxSubmissionPageSize     = 200
)

// ModerationMetrics records moderation outcomes.
type ModerationMetrics interface {
	NotificationMetrics
	ObserveModeration(action, outcome string)
}

// SubmitInput is a visitor story as received from the public form.
type SubmitInput struct {
	Title        string `json:"title" validate:"required,max=200"`
	Body         string `json:"body" validate:"required,max=20000"`
	ContactEmail string `json:"contact_email" validate:"required,email,max=254"`
	Author       string `json:"author" validate:"max=100"`
	Anonymous    bool   `json:"anonymous"`
}

// SubmitResult is returned after a story is accepted.
type SubmitResult struct {
	Submission   domain.Submission
	Notification domain.DeliveryReport
}

// ModerationResult is returned after a submission is approved or rejected.
type ModerationResult struct {
	Submission   domain.Submission
	Notification domain.DeliveryReport
}

// ConvertResult identifies the draft created from a submission.
type ConvertResult struct {
	DraftID      string
	SubmissionID string
}

// ModerationService coordinates story submissions and their review.
type ModerationService struct {
	submissions   port.SubmissionRepository
	articles      port.ArticlePublisher
	notify        *dispatcher
	reviewAddress string
	validator     *inputValidator
	metrics       ModerationMetrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewModerationService constructs a ModerationService. reviewAddress receives the
// submission-received notification for every new story.
func NewModerationService(submissions port.SubmissionRepository, articles port.ArticlePublisher, notifier port.Notifier, reviewAddress string, log *zap.Logger) *ModerationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModerationService{
		submissions:   submissions,
		articles:      articles,
		notify:        newDispatcher(notifier, log),
		reviewAddress: strings.TrimSpace(reviewAddress),
		validator:     newInputValidator(),
		logger:        log,
		now:           time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ModerationService) WithClock(clock func() time.Time) *ModerationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches a metrics recorder.
func (s *ModerationService) WithMetrics(metrics ModerationMetrics) *ModerationService {
	s.metrics = metrics
	s.notify.metrics = metrics
	return s
}

// Submit stores a new story with status new and notifies the review address.
func (s *ModerationService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	clean := SubmitInput{
		Title:        s.validator.PlainText(in.Title),
		Body:         s.validator.RichText(in.Body),
		ContactEmail: strings.TrimSpace(in.ContactEmail),
		Author:       s.validator.PlainText(in.Author),
		Anonymous:    in.Anonymous,
	}
	if err := s.validator.Struct(clean); err != nil {
		s.observe("submit", "invalid")
		return nil, err
	}

	submission := domain.Submission{
		ID:           uuid.NewString(),
		Title:        clean.Title,
		Body:         clean.Body,
		ContactEmail: clean.ContactEmail,
		Anonymous:    clean.Anonymous,
		Status:       domain.SubmissionStatusNew,
		CreatedAt:    s.now().UTC(),
	}
	if !clean.Anonymous && clean.Author != "" {
		author := clean.Author
		submission.Author = &author
	}

	if err := s.submissions.Create(ctx, submission); err != nil {
		s.observe("submit", "error")
		return nil, unavailable("store submission", err)
	}
	s.observe("submit", "ok")

	logger.WithContext(ctx, s.logger).Info("story submitted",
		zap.String("submission_id", submission.ID),
		zap.Bool("anonymous", submission.Anonymous),
	)

	report := s.notify.dispatch(ctx, domain.Notification{
		Key:      submissionNotificationKey(submission.ID, "received"),
		Template: domain.TemplateSubmissionReceived,
		To:       s.reviewAddress,
		Data: map[string]string{
			"submission_id": submission.ID,
			"title":         submission.Title,
			"author":        submission.EffectiveAuthor(),
			"submitted_at":  submission.CreatedAt.Format(time.RFC1123),
		},
		CreatedAt: submission.CreatedAt,
	})

	return &SubmitResult{Submission: submission.Redacted(), Notification: report}, nil
}

// Approve moves a new submission to approved and notifies its author.
func (s *ModerationService) Approve(ctx context.Context, id string) (*ModerationResult, error) {
	return s.decide(ctx, id, domain.SubmissionStatusApproved, domain.TemplateStoryApproved)
}

// Reject moves a new submission to rejected and notifies its author.
func (s *ModerationService) Reject(ctx context.Context, id string) (*ModerationResult, error) {
	return s.decide(ctx, id, domain.SubmissionStatusRejected, domain.TemplateStoryRejected)
}

func (s *ModerationService) decide(ctx context.Context, id string, to domain.SubmissionStatus, template domain.NotificationTemplate) (*ModerationResult, error) {
	action := string(to)
	if !validID(id) {
		s.observe(action, "not_found")
		return nil, ErrSubmissionNotFound
	}

	decidedAt := s.now().UTC()
	submission, err := s.submissions.TransitionStatus(ctx, id, domain.SubmissionStatusNew, to, decidedAt)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.observe(action, "not_found")
			return nil, ErrSubmissionNotFound
		case errors.Is(err, repository.ErrStateMismatch):
			s.observe(action, "already_processed")
			return nil, ErrInvalidState
		default:
			s.observe(action, "error")
			return nil, unavailable("transition submission", err)
		}
	}
	s.observe(action, "ok")

	logger.WithContext(ctx, s.logger).Info("submission decided",
		zap.String("submission_id", submission.ID),
		zap.String("status", string(submission.Status)),
	)

	report := s.notify.dispatch(ctx, domain.Notification{
		Key:      submissionNotificationKey(submission.ID, action),
		Template: template,
		To:       submission.ContactEmail,
		Data: map[string]string{
			"submission_id": submission.ID,
			"title":         submission.Title,
			"author":        submission.EffectiveAuthor(),
		},
		CreatedAt: decidedAt,
	})

	return &ModerationResult{Submission: submission.Redacted(), Notification: report}, nil
}

// ConvertToArticle seeds a blog post draft from the submission. Moderation state is
// not touched and the submission may be in any status.
func (s *ModerationService) ConvertToArticle(ctx context.Context, id string) (*ConvertResult, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		s.observe("convert", outcomeFor(err))
		return nil, err
	}

	draftID, err := s.articles.PublishDraft(ctx, domain.ArticleSeed{
		SubmissionID: submission.ID,
		Title:        submission.Title,
		Body:         submission.Body,
		Author:       submission.EffectiveAuthor(),
	})
	if err != nil {
		s.observe("convert", "error")
		return nil, unavailable("publish draft", err)
	}
	s.observe("convert", "ok")

	logger.WithContext(ctx, s.logger).Info("submission converted to article",
		zap.String("submission_id", submission.ID),
		zap.String("draft_id", draftID),
	)
	return &ConvertResult{DraftID: draftID, SubmissionID: submission.ID}, nil
}

// Delete removes a submission regardless of its status.
func (s *ModerationService) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		s.observe("delete", "not_found")
		return ErrSubmissionNotFound
	}
	if err := s.submissions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe("delete", "not_found")
			return ErrSubmissionNotFound
		}
		s.observe("delete", "error")
		return unavailable("delete submission", err)
	}
	s.observe("delete", "ok")
	logger.WithContext(ctx, s.logger).Info("submission deleted", zap.String("submission_id", id))
	return nil
}

// Get returns one submission with the author masked for anonymous stories.
func (s *ModerationService) Get(ctx context.Context, id string) (*domain.Submission, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	redacted := submission.Redacted()
	return &redacted, nil
}

// List returns submissions newest first, optionally narrowed by status.
func (s *ModerationService) List(ctx context.Context, filter port.SubmissionFilter) ([]domain.Submission, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, newValidationError("status", "must be one of new, approved, rejected")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultSubmissionPageSize
	}
	if filter.Limit > maxSubmissionPageSize {
		filter.Limit = maxSubmissionPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, unavailable("list submissions", err)
	}
	out := make([]domain.Submission, 0, len(items))
	for _, item := range items {
		out = append(out, item.Redacted())
	}
	return out, nil
}

func (s *ModerationService) load(ctx context.Context, id string) (*domain.Submission, error) {
	if !validID(id) {
		return nil, ErrSubmissionNotFound
	}
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, unavailable("load submission", err)
	}
	return submission, nil
}

func (s *ModerationService) observe(action, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveModeration(action, outcome)
	}
}

func submissionNotificationKey(id, event string) string {
	return "submission:" + id + ":" + event
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "error"
	default:
		return "invalid"
	}
}
