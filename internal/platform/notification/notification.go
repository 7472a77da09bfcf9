// Package notification provides outbound email for the feedback flow.
// Delivery is fire-and-forget: the request path never blocks on SMTP.
package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"sync"

	"github.com/rs/zerolog"
)

// Attachment is a file to include with an outbound message.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string, attachments []Attachment) error
}

// SMTPSender sends mail through a plain SMTP endpoint.
type SMTPSender struct {
	Addr string // host:port
	From string
}

func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string, attachments []Attachment) error {
	msg, err := buildMessage(s.From, to, subject, body, attachments)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	if err := smtp.SendMail(s.Addr, nil, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.Addr, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, attachments []Attachment) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		header := textproto.MIMEHeader{}
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, err
		}
		enc := base64.StdEncoding.EncodeToString(a.Data)
		if _, err := part.Write([]byte(enc)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoopbackSender records messages instead of delivering them. Used in tests
// and when no SMTP endpoint is configured.
type LoopbackSender struct {
	mu       sync.Mutex
	Messages []LoopbackMessage
}

type LoopbackMessage struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

func (s *LoopbackSender) SendEmail(_ context.Context, to, subject, body string, attachments []Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, LoopbackMessage{To: to, Subject: subject, Body: body, Attachments: attachments})
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *LoopbackSender) Sent() []LoopbackMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LoopbackMessage, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Mailer dispatches feedback mail asynchronously.
type Mailer struct {
	sender EmailSender
	to     string
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewMailer(sender EmailSender, feedbackAddress string, logger zerolog.Logger) *Mailer {
	return &Mailer{sender: sender, to: feedbackAddress, logger: logger}
}

// SendFeedback queues a feedback message for delivery and returns immediately.
// Failures are logged, never surfaced to the submitting user.
func (m *Mailer) SendFeedback(subject, body string, attachments []Attachment) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sender.SendEmail(context.Background(), m.to, subject, body, attachments); err != nil {
			m.logger.Error().Err(err).Str("to", m.to).Msg("feedback mail delivery failed")
		}
	}()
}

// Wait blocks until queued deliveries finish. Used in tests and shutdown.
func (m *Mailer) Wait() {
	m.wg.Wait()
}
