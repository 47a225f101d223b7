package mail

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
)

const implicitTLSPort = 465

// Message is a rendered email with plain-text and HTML alternatives.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers messages over SMTP. Port 465 uses implicit TLS; other ports
// upgrade with STARTTLS when the server offers it.
type Sender struct {
	cfg     config.SMTPSettings
	auth    smtp.Auth
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewSender constructs an SMTP sender. Authentication is skipped when no
// username is configured, which suits local relays such as MailHog.
func NewSender(cfg config.SMTPSettings, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sender{
		cfg:     cfg,
		timeout: 10 * time.Second,
		logger:  log,
		now:     time.Now,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

// Send delivers one message. The context bounds dialing and the whole SMTP exchange.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	body, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.timeout}

	var conn net.Conn
	if s.cfg.Port == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("connect smtp %s: %w", address, err)
	}
	defer conn.Close()

	deadline := s.now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if s.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("start tls: %w", err)
			}
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", logger.MaskEmail(msg.To), err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	s.logger.Debug("mail sent", zap.String("to", logger.MaskEmail(msg.To)))
	return client.Quit()
}

func (s *Sender) buildMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.From}
	header := textproto.MIMEHeader{}
	header.Set("Message-ID", s.messageID())
	header.Set("Date", s.now().Format(time.RFC1123Z))
	header.Set("From", from.String())
	header.Set("To", msg.To)
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("MIME-Version", "1.0")

	if msg.HTMLBody == "" {
		header.Set("Content-Type", `text/plain; charset="utf-8"`)
		writeHeader(&buf, header)
		buf.WriteString(msg.TextBody)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())

	var out bytes.Buffer
	writeHeader(&out, header)

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{`text/plain; charset="utf-8"`, msg.TextBody},
		{`text/html; charset="utf-8"`, msg.HTMLBody},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func (s *Sender) messageID() string {
	var raw [12]byte
	_, _ = rand.Read(raw[:])
	domain := "localhost"
	if addr, err := mail.ParseAddress(s.cfg.From); err == nil {
		if at := strings.LastIndexByte(addr.Address, '@'); at >= 0 {
			domain = addr.Address[at+1:]
		}
	}
	return fmt.Sprintf("<%d.%s@%s>", s.now().UnixNano(), hex.EncodeToString(raw[:]), domain)
}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, key := range []string{"Message-ID", "Date", "From", "To", "Subject", "MIME-Version", "Content-Type"} {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
}
