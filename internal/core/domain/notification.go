package domain

import (
	"fmt"
	"time"
)

// NotificationTemplate identifies a message template known to the notification sender.
type NotificationTemplate string

const (
	TemplateSubmissionReceived NotificationTemplate = "submission-received"
	TemplateStoryApproved      NotificationTemplate = "story-approved"
	TemplateStoryRejected      NotificationTemplate = "story-rejected"
	TemplateAccountWelcome     NotificationTemplate = "account-welcome"
)

// Valid reports whether the template is one the sender can render.
func (t NotificationTemplate) Valid() bool {
	switch t {
	case TemplateSubmissionReceived, TemplateStoryApproved, TemplateStoryRejected, TemplateAccountWelcome:
		return true
	default:
		return false
	}
}

// Notification is one message to deliver. Key identifies the transition that caused it,
// so downstream consumers can drop redeliveries of the same transition.
type Notification struct {
	Key       string
	Template  NotificationTemplate
	To        string
	Data      map[string]string
	CreatedAt time.Time
}

// DeliveryFailure reports that the notification channel did not accept a message.
type DeliveryFailure struct {
	Template NotificationTemplate
	Reason   string
	Err      error
}

func (e *DeliveryFailure) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("deliver %s: %s", e.Template, e.Reason)
}

func (e *DeliveryFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DeliveryReport summarizes the outcome of dispatching a notification after a
// state change has already committed.
type DeliveryReport struct {
	Template  NotificationTemplate
	Delivered bool
	Reason    string
}
