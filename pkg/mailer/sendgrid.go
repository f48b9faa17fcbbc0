package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/immersup/immersup-api/pkg/config"
)

// SendgridSender delivers messages through the Sendgrid v3 API.
type SendgridSender struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

// NewSendgridSender builds a sender from the mail configuration.
func NewSendgridSender(cfg config.MailConfig) *SendgridSender {
	return &SendgridSender{
		client:     sendgrid.NewSendClient(cfg.SendgridAPIKey),
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: cfg.SubjectPrefix,
	}
}

// Send implements Sender.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	m.AddContent(sgmail.NewContent(contentType, msg.Body))

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
