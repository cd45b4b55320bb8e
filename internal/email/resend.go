package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/resend/resend-go/v2"
)

// ErrRateLimited wraps Resend 429 responses. The job queue retries them with
// backoff like any other delivery error.
var ErrRateLimited = errors.New("email provider rate limit exceeded")

// outgoing is one rendered message ready for delivery.
type outgoing struct {
	kind    string
	toName  string
	toEmail string
	subject string
	html    string
}

// recipientHeader formats the To address with the display name when known.
func (m outgoing) recipientHeader() string {
	if m.toName == "" {
		return m.toEmail
	}
	return (&mail.Address{Name: m.toName, Address: m.toEmail}).String()
}

// deliver sends m through the Resend API, tagged with the notification kind.
func (s *Service) deliver(ctx context.Context, m outgoing) error {
	if s.resendClient == nil {
		return fmt.Errorf("resend client not initialized")
	}

	req := &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{m.recipientHeader()},
		Subject: m.subject,
		Html:    m.html,
	}
	if m.kind != "" {
		req.Tags = []resend.Tag{{Name: "kind", Value: m.kind}}
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, req)
	if err != nil {
		var limited *resend.RateLimitError
		if errors.As(err, &limited) {
			s.logger.Warn().
				Str("kind", m.kind).
				Str("limit", limited.Limit).
				Str("reset", limited.Reset).
				Msg("resend rate limit exceeded")
			return fmt.Errorf("%w (resets in %ss): %w", ErrRateLimited, limited.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("kind", m.kind).
		Str("to", m.toEmail).
		Msg("email sent")
	return nil
}
