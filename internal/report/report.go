// Package report emails operators a summary when a run ends.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/session"
)

const (
	SubjectCompleted = "✅ Manual Scraping Completed"
	SubjectFailed    = "❌ Manual Scraping Failed"
)

// Message is one rendered report.
type Message struct {
	Subject string
	Body    string
}

// Completed renders the success template.
func Completed(s *session.Session) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Channels processed: %d/%d\n", s.ProcessedChannels, s.TotalChannels)
	fmt.Fprintf(&b, "Jobs extracted: %d\n", s.TotalJobsExtracted)
	fmt.Fprintf(&b, "Messages processed: %d\n", s.TotalMessagesProcessed)
	fmt.Fprintf(&b, "Errors: %d\n", len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	writeTimes(&b, s)
	return Message{Subject: SubjectCompleted, Body: b.String()}
}

// Failed renders the failure template.
func Failed(s *session.Session) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Error: %s\n", s.Error)
	fmt.Fprintf(&b, "Channels processed before failure: %d/%d\n", s.ProcessedChannels, s.TotalChannels)
	writeTimes(&b, s)
	return Message{Subject: SubjectFailed, Body: b.String()}
}

func writeTimes(b *strings.Builder, s *session.Session) {
	fmt.Fprintf(b, "Started: %s\n", s.StartedAt.Format(time.RFC1123))
	if s.CompletedAt != nil {
		fmt.Fprintf(b, "Finished: %s (%s)\n", s.CompletedAt.Format(time.RFC1123),
			s.CompletedAt.Sub(s.StartedAt).Round(time.Second))
	}
}

// OperatorDirectory lists report recipients.
type OperatorDirectory interface {
	OperatorEmails(ctx context.Context) ([]string, error)
}

// Mailer delivers a rendered report to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, m Message) error
}

// sendClient is the part of *sendgrid.Client the mailer uses.
type sendClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridMailer struct {
	client     sendClient
	sender     string
	senderName string
	logger     *zap.Logger
}

// NewSendGridMailer returns a Mailer backed by the SendGrid v3 API.
func NewSendGridMailer(apiKey, sender, senderName string, logger *zap.Logger) Mailer {
	return sendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		sender:     sender,
		senderName: senderName,
		logger:     logger.Named("sendgrid"),
	}
}

// Send mails m with one personalization per recipient, so operators do not
// see each other's addresses.
func (c sendGridMailer) Send(_ context.Context, to []string, m Message) error {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail(c.senderName, c.sender))
	msg.Subject = m.Subject
	for _, addr := range to {
		p := mail.NewPersonalization()
		p.AddTos(mail.NewEmail(addr, addr))
		msg.AddPersonalizations(p)
	}
	msg.AddContent(mail.NewContent("text/plain", m.Body))

	resp, err := c.client.Send(msg)
	if err != nil {
		c.logger.Error("send email error", zap.Error(err))
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("send email error",
			zap.Int("status", resp.StatusCode),
			zap.String("response", resp.Body))
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Emitter sends reports to every operator account. A nil Mailer logs the
// report instead.
type Emitter struct {
	dir    OperatorDirectory
	mailer Mailer
	logger *zap.Logger
}

func NewEmitter(dir OperatorDirectory, mailer Mailer, logger *zap.Logger) *Emitter {
	return &Emitter{dir: dir, mailer: mailer, logger: logger.Named("report")}
}

// Completed emails the success report for s.
func (e *Emitter) Completed(ctx context.Context, s *session.Session) error {
	return e.emit(ctx, s.ID, Completed(s))
}

// Failed emails the failure report for s.
func (e *Emitter) Failed(ctx context.Context, s *session.Session) error {
	return e.emit(ctx, s.ID, Failed(s))
}

func (e *Emitter) emit(ctx context.Context, sessionID string, m Message) error {
	if e.mailer == nil {
		e.logger.Info("mail not configured, report logged only",
			zap.String("sessionId", sessionID), zap.String("subject", m.Subject))
		return nil
	}

	to, err := e.dir.OperatorEmails(ctx)
	if err != nil {
		return fmt.Errorf("load operators: %w", err)
	}
	if len(to) == 0 {
		e.logger.Warn("no operator accounts, report dropped", zap.String("sessionId", sessionID))
		return nil
	}

	if err := e.mailer.Send(ctx, to, m); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	e.logger.Info("report sent", zap.String("sessionId", sessionID),
		zap.String("subject", m.Subject), zap.Int("recipients", len(to)))
	return nil
}
