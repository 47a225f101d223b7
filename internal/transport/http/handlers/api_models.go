package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// InvalidLinkResponse is returned when a setup link can no longer be used.
type InvalidLinkResponse struct {
	Error         string `json:"error"`
	CanRequestNew bool   `json:"can_request_new"`
	TraceID       string `json:"trace_id,omitempty"`
}

// DeliveryResponse reports whether the notification triggered by an action went out.
type DeliveryResponse struct {
	Template  string `json:"template"`
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

func newDeliveryResponse(report domain.DeliveryReport) DeliveryResponse {
	return DeliveryResponse{
		Template:  string(report.Template),
		Delivered: report.Delivered,
		Reason:    report.Reason,
	}
}

// SubmitStoryRequest is the public story form payload.
type SubmitStoryRequest struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	ContactEmail string `json:"contact_email"`
	Author       string `json:"author"`
	Anonymous    bool   `json:"anonymous"`
}

// SubmitStoryResponse acknowledges a public submission. Internal fields stay private.
type SubmitStoryResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

// SubmissionResponse is the staff view of a submission.
type SubmissionResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	ContactEmail string     `json:"contact_email"`
	Author       string     `json:"author"`
	Anonymous    bool       `json:"anonymous"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

func newSubmissionResponse(sub domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           sub.ID,
		Title:        sub.Title,
		Body:         sub.Body,
		ContactEmail: sub.ContactEmail,
		Author:       sub.EffectiveAuthor(),
		Anonymous:    sub.Anonymous,
		Status:       string(sub.Status),
		CreatedAt:    sub.CreatedAt,
		DecidedAt:    sub.DecidedAt,
	}
}

// SubmissionListResponse wraps a page of submissions.
type SubmissionListResponse struct {
	Items  []SubmissionResponse `json:"items"`
	Count  int                  `json:"count"`
	Offset int                  `json:"offset"`
}

// ModerationResponse is returned after approve or reject.
type ModerationResponse struct {
	Submission   SubmissionResponse `json:"submission"`
	Notification DeliveryResponse   `json:"notification"`
}

// ArticleResponse identifies the draft created from a submission.
type ArticleResponse struct {
	DraftID      string `json:"draft_id"`
	SubmissionID string `json:"submission_id"`
}

// CreateAccountRequest is the admin payload for a new staff account.
type CreateAccountRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// AccountResponse is the admin view of a staff account.
type AccountResponse struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	CredentialSet  bool       `json:"credential_set"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func newAccountResponse(account domain.Account, state domain.ProvisioningState, tokenExpiresAt *time.Time) AccountResponse {
	return AccountResponse{
		ID:             account.ID,
		Username:       account.Username,
		Email:          account.Email,
		FirstName:      account.FirstName,
		LastName:       account.LastName,
		DisplayName:    account.DisplayName,
		IsAdmin:        account.IsAdmin,
		CredentialSet:  account.CredentialSet,
		State:          string(state),
		CreatedAt:      account.CreatedAt,
		ActivatedAt:    account.ActivatedAt,
		TokenExpiresAt: tokenExpiresAt,
	}
}

// ProvisioningResponse is returned when a setup link is issued.
type ProvisioningResponse struct {
	Account      AccountResponse  `json:"account"`
	Notification DeliveryResponse `json:"notification"`
}

func newProvisioningResponse(result *usecase.ProvisioningResult) ProvisioningResponse {
	expires := result.ExpiresAt
	return ProvisioningResponse{
		Account:      newAccountResponse(result.Account, result.State, &expires),
		Notification: newDeliveryResponse(result.Notification),
	}
}

// AccountSetupRequest redeems a setup link.
type AccountSetupRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the staff login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse describes a successful login.
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	Account     AccountResponse `json:"account"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
