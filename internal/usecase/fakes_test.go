package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/infra/security"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *recordingNotifier) Fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

type recordingMetrics struct {
	mu           sync.Mutex
	moderation   map[string]int
	provisioning map[string]int
	delivered    int
	failed       int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{moderation: map[string]int{}, provisioning: map[string]int{}}
}

func (m *recordingMetrics) ObserveModeration(action, outcome string) {
	m.mu.Lock()
	m.moderation[action+"/"+outcome]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveProvisioning(event string) {
	m.mu.Lock()
	m.provisioning[event]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveNotification(_ string, delivered bool) {
	m.mu.Lock()
	if delivered {
		m.delivered++
	} else {
		m.failed++
	}
	m.mu.Unlock()
}

// plainHasher keeps tests fast; argon2 itself is covered in the security package.
type plainHasher struct{}

func (plainHasher) Hash(credential string) (string, error) {
	return "plain$" + credential, nil
}

func (plainHasher) Verify(credential, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unknown hash format")
	}
	return encoded == "plain$"+credential, nil
}

func testCredentialPolicy() *security.CredentialPolicy {
	return security.NewCredentialPolicy(security.CredentialPolicyConfig{MinLength: 8, MinClasses: 3})
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func tokenFromLink(t *testing.T, n domain.Notification) string {
	t.Helper()
	link := n.Data["setup_link"]
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse setup link %q: %v", link, err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("setup link %q carries no token", link)
	}
	return token
}
