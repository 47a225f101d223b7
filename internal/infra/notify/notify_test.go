package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/infra/mail"
)

func TestRendererAccountWelcome(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}

	msg, err := renderer.Render(domain.Notification{
		Template: domain.TemplateAccountWelcome,
		To:       "jdoe@example.org",
		Data: map[string]string{
			"name":       "Jane Doe",
			"username":   "jdoe",
			"setup_link": "https://portal.example.org/setup?token=abc123",
			"expires_at": "2026-10-15 09:00 UTC",
		},
	})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if msg.Subject != "Set up your District 5B staff account" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "https://portal.example.org/setup?token=abc123") {
		t.Fatalf("expected setup link in text body")
	}
	if !strings.Contains(msg.HTMLBody, `<a href="https://portal.example.org/setup?token=abc123">Choose your password</a>`) {
		t.Fatalf("expected rendered link in html body, got %s", msg.HTMLBody)
	}
}

func TestRendererDropsRawHTML(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}

	msg, err := renderer.Render(domain.Notification{
		Template: domain.TemplateStoryApproved,
		To:       "maria@example.org",
		Data:     map[string]string{"title": "<script>alert(1)</script>"},
	})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(msg.HTMLBody, "<script>") {
		t.Fatalf("expected raw html to be omitted, got %s", msg.HTMLBody)
	}
}

func TestRendererUnknownTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}
	if _, err := renderer.Render(domain.Notification{Template: "nope"}); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

type stubSender struct {
	err  error
	sent []mail.Message
}

func (s *stubSender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestMailNotifierWrapsSenderFailure(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer returned error: %v", err)
	}
	sender := &stubSender{err: errors.New("connection refused")}
	notifier := NewMailNotifier(renderer, sender, nil)

	err = notifier.Send(context.Background(), domain.Notification{
		Template: domain.TemplateStoryRejected,
		To:       "maria@example.org",
		Data:     map[string]string{"title": "First Step"},
	})

	var failure *domain.DeliveryFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected DeliveryFailure, got %v", err)
	}
	if failure.Reason != "mail server unavailable" {
		t.Fatalf("unexpected reason %q", failure.Reason)
	}
}

func TestLogNotifierNeverLogsPayload(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	notifier := NewLogNotifier(zap.New(core))

	err := notifier.Send(context.Background(), domain.Notification{
		Key:      "acc-1:welcome:tok-1",
		Template: domain.TemplateAccountWelcome,
		To:       "jdoe@example.org",
		Data:     map[string]string{"setup_link": "https://portal.example.org/setup?token=SECRET"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	for _, entry := range logs.All() {
		for key, value := range entry.ContextMap() {
			if s, ok := value.(string); ok && strings.Contains(s, "SECRET") {
				t.Fatalf("field %s leaked the token", key)
			}
		}
		if entry.ContextMap()["to"] != "jdo***@example.org" {
			t.Fatalf("expected masked address, got %v", entry.ContextMap()["to"])
		}
	}
}
