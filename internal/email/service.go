// Package email renders and sends the association's transactional email.
package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/ams-cubing/public-calendar/internal/domain/dates"
	"github.com/ams-cubing/public-calendar/internal/domain/notifications"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrNoAddress is returned for recipients without a deliverable address,
// such as imported accounts holding a placeholder email.
var ErrNoAddress = errors.New("recipient has no deliverable address")

const (
	subjectAssigned  = "Asignación como delegado: %s (%s - %s)"
	subjectRemoved   = "Remoción como delegado: %s (%s - %s)"
	subjectUltimatum = "Ultimátum enviado para tu competencia"
)

// Tag values attached to each delivery.
const (
	kindAssigned  = "delegate_assigned"
	kindRemoved   = "delegate_removed"
	kindUltimatum = "ultimatum"
)

// Service sends email through Resend. When email is disabled messages are
// rendered and logged but not delivered.
type Service struct {
	config       config.EmailConfig
	panelURL     string
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// Assignment is the competition data shown in delegate assignment emails.
type Assignment struct {
	City      string
	StartDate time.Time
	EndDate   time.Time
}

type assignmentData struct {
	Subject   string
	Name      string
	City      string
	StartDate string
	EndDate   string
	PanelURL  string
}

type ultimatumData struct {
	Subject     string
	Name        string
	Competition string
	StartDate   string
	EndDate     string
	Deadline    string
	Message     string
	PanelURL    string
}

// NewService parses the embedded templates and, when email is enabled,
// creates the Resend client.
func NewService(cfg config.EmailConfig, baseURL string, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if _, err := mail.ParseAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	s := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if baseURL != "" {
		s.panelURL = strings.TrimRight(baseURL, "/") + "/panel"
	}
	if cfg.Enabled {
		s.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return s, nil
}

// SendDelegateAssigned tells a delegate they now oversee a competition.
func (s *Service) SendDelegateAssigned(ctx context.Context, to notifications.Recipient, comp Assignment) error {
	return s.sendAssignment(ctx, "delegate_assigned.html", subjectAssigned, to, comp, kindAssigned)
}

// SendDelegateRemoved tells a delegate they no longer oversee a competition.
func (s *Service) SendDelegateRemoved(ctx context.Context, to notifications.Recipient, comp Assignment) error {
	return s.sendAssignment(ctx, "delegate_removed.html", subjectRemoved, to, comp, kindRemoved)
}

func (s *Service) sendAssignment(ctx context.Context, tmpl, subjectFormat string, to notifications.Recipient, comp Assignment, kind string) error {
	start, end := dates.Format(comp.StartDate), dates.Format(comp.EndDate)
	data := assignmentData{
		Subject:   fmt.Sprintf(subjectFormat, comp.City, start, end),
		Name:      to.Name,
		City:      comp.City,
		StartDate: start,
		EndDate:   end,
		PanelURL:  s.panelURL,
	}
	body, err := s.render(tmpl, data)
	if err != nil {
		return err
	}
	return s.send(ctx, kind, to, data.Subject, body)
}

// SendUltimatum tells an organizer the reservation lapses unless they act
// before deadline. An empty message uses the standard reminder text.
func (s *Service) SendUltimatum(ctx context.Context, to notifications.Recipient, comp notifications.CompetitionSummary, deadline time.Time, message string) error {
	data := ultimatumData{
		Subject:     subjectUltimatum,
		Name:        to.Name,
		Competition: comp.DisplayName(),
		StartDate:   dates.Format(comp.StartDate),
		EndDate:     dates.Format(comp.EndDate),
		Deadline:    dates.Format(deadline),
		Message:     strings.TrimSpace(message),
		PanelURL:    s.panelURL,
	}
	body, err := s.render("ultimatum.html", data)
	if err != nil {
		return err
	}
	return s.send(ctx, kindUltimatum, to, data.Subject, body)
}

func (s *Service) send(ctx context.Context, kind string, to notifications.Recipient, subject, body string) error {
	if err := checkRecipient(to.Email); err != nil {
		return err
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("kind", kind).
			Str("to", to.Email).
			Str("subject", subject).
			Msg("email disabled, skipping delivery")
		return nil
	}
	return s.deliver(ctx, outgoing{kind: kind, toName: to.Name, toEmail: to.Email, subject: subject, html: body})
}

// checkRecipient rejects placeholder addresses and anything that could
// smuggle extra headers.
func checkRecipient(address string) error {
	if strings.TrimSpace(address) == "" || users.IsPlaceholderEmail(address) {
		return ErrNoAddress
	}
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid recipient email: contains newline characters")
	}
	return nil
}

func (s *Service) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
