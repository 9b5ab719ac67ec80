package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/store"
)

// SMTPSender delivers mail through an SMTP relay. net/smtp upgrades the
// connection with STARTTLS when the server offers it.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ interfaces.Sender = (*SMTPSender)(nil)

// NewSMTPSender reads credentials from the env vars the config names. From
// defaults to the login user.
func NewSMTPSender(cfg *store.Config) (*SMTPSender, error) {
	s := &SMTPSender{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: store.Secret(cfg.Notify.UserEnv),
		Password: store.Secret(cfg.Notify.PassEnv),
		From:     cfg.Notify.From,
		To:       cfg.Notify.To,
		send:     smtp.SendMail,
	}
	if s.From == "" {
		s.From = s.Username
	}
	if s.Username == "" || s.Password == "" {
		return nil, fmt.Errorf("smtp credentials missing: set %s and %s", cfg.Notify.UserEnv, cfg.Notify.PassEnv)
	}
	if len(s.To) == 0 {
		return nil, fmt.Errorf("notify.to is empty")
	}
	return s, nil
}

func (s *SMTPSender) Send(ctx context.Context, subject, text, html string) error {
	msg, err := buildMessage(s.From, s.To, subject, text, html, time.Now())
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)

	if err := s.send(addr, auth, s.From, s.To, msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	logger.Info(ctx, "Mail sent", "to", strings.Join(s.To, ","), "bytes", len(msg))
	return nil
}

// buildMessage renders a multipart/alternative message with a text and an
// HTML part.
func buildMessage(from string, to []string, subject, text, html string, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", text},
		{"text/html; charset=UTF-8", html},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 {
		domain = from[i+1:]
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// LogSender writes the text summary to the log instead of mailing it.
type LogSender struct{}

var _ interfaces.Sender = LogSender{}

func (LogSender) Send(ctx context.Context, subject, text, _ string) error {
	logger.Info(ctx, "Verification report", "subject", subject, "body", text)
	return nil
}
