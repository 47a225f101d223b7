package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
)

// fakeSMTPServer accepts one session and records the DATA payload.
type fakeSMTPServer struct {
	listener net.Listener
	mu       sync.Mutex
	rcpt     []string
	data     string
	done     chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeSMTPServer{listener: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go srv.serve()
	return srv
}

func (s *fakeSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			write("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line))
			s.mu.Unlock()
			write("250 OK")
		case cmd == "DATA":
			write("354 end with .")
			var sb strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				sb.WriteString(dl)
			}
			s.mu.Lock()
			s.data = sb.String()
			s.mu.Unlock()
			write("250 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 OK")
		}
	}
}

func TestSenderSendDeliversMultipartMessage(t *testing.T) {
	srv := startFakeSMTP(t)

	sender := NewSender(config.SMTPSettings{
		Host:     "127.0.0.1",
		Port:     srv.port(),
		From:     "no-reply@district5b.org",
		FromName: "District 5B",
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sender.Send(ctx, Message{
		To:       "maria@example.org",
		Subject:  "Your story was published",
		TextBody: "Thanks for sharing.",
		HTMLBody: "<p>Thanks for sharing.</p>",
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	<-srv.done
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if len(srv.rcpt) != 1 || !strings.Contains(srv.rcpt[0], "maria@example.org") {
		t.Fatalf("unexpected recipients %v", srv.rcpt)
	}
	for _, want := range []string{"Subject: Your story was published", "multipart/alternative", "<p>Thanks for sharing.</p>", "Thanks for sharing."} {
		if !strings.Contains(srv.data, want) {
			t.Fatalf("expected message to contain %q, got:\n%s", want, srv.data)
		}
	}
}

func TestSenderSendRejectsInvalidRecipient(t *testing.T) {
	sender := NewSender(config.SMTPSettings{Host: "127.0.0.1", Port: 1}, nil)
	if err := sender.Send(context.Background(), Message{To: "not an address"}); err == nil {
		t.Fatalf("expected invalid recipient error")
	}
}

func TestSenderSendReportsConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	sender := NewSender(config.SMTPSettings{Host: "127.0.0.1", Port: port, From: "a@b.org"}, nil)
	err = sender.Send(context.Background(), Message{To: "x@example.org", TextBody: "hi"})
	if err == nil || !strings.Contains(err.Error(), "connect smtp 127.0.0.1:"+strconv.Itoa(port)) {
		t.Fatalf("expected connect error, got %v", err)
	}
}
