package mail

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/zap"
)

const (
	TemplateConfirmation    = "confirmation"
	TemplateResend          = "resend"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
)

// Sender renders a named template to a list of recipients.
type Sender interface {
	SendTemplate(ctx context.Context, templateName string, to []string, subject string, data TemplateData) error
}

// Mailer turns credential lifecycle events into templated messages.
type Mailer struct {
	sender  Sender
	appName string
	appURL  string
	logger  *logging.Service
	now     func() time.Time
}

func NewMailer(cfg *config.Config, sender Sender, logger *logging.Service) *Mailer {
	return &Mailer{
		sender:  sender,
		appName: cfg.App.Name,
		appURL:  cfg.App.URL,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Mailer) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Mailer) SendConfirmation(ctx context.Context, user *users.User, record *verification.Record) error {
	return m.sendCode(ctx, TemplateConfirmation, fmt.Sprintf("Confirm your %s account", m.appName), "/verify-email", user, record)
}

func (m *Mailer) SendResend(ctx context.Context, user *users.User, record *verification.Record) error {
	return m.sendCode(ctx, TemplateResend, fmt.Sprintf("Your new %s verification code", m.appName), "/verify-email", user, record)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, user *users.User, record *verification.Record) error {
	return m.sendCode(ctx, TemplatePasswordReset, fmt.Sprintf("Reset your %s password", m.appName), "/reset-password", user, record)
}

func (m *Mailer) SendPasswordChangedNotice(ctx context.Context, user *users.User) error {
	data := TemplateData{
		"AppName":   m.appName,
		"AppURL":    m.appURL,
		"Name":      user.Name,
		"ChangedAt": m.now().Format(time.RFC1123),
	}
	return m.send(ctx, TemplatePasswordChanged, fmt.Sprintf("Your %s password was changed", m.appName), user, data)
}

func (m *Mailer) sendCode(ctx context.Context, templateName, subject, path string, user *users.User, record *verification.Record) error {
	minutes := int(record.ExpiresIn(m.now()).Round(time.Minute) / time.Minute)
	data := TemplateData{
		"AppName":          m.appName,
		"AppURL":           m.appURL,
		"Name":             user.Name,
		"Code":             record.Code,
		"Link":             m.link(path, record),
		"ExpiresInMinutes": minutes,
	}
	return m.send(ctx, templateName, subject, user, data)
}

func (m *Mailer) link(path string, record *verification.Record) string {
	query := url.Values{}
	query.Set("token", record.Token)
	query.Set("email", record.Email)
	return m.appURL + path + "?" + query.Encode()
}

func (m *Mailer) send(ctx context.Context, templateName, subject string, user *users.User, data TemplateData) error {
	if err := m.sender.SendTemplate(ctx, templateName, []string{user.Email}, subject, data); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to deliver mail",
				zap.String("template", templateName),
				logging.Email(user.Email),
				zap.Error(err))
		}
		return err
	}

	if m.logger != nil {
		m.logger.Info("mail delivered", zap.String("template", templateName), logging.Email(user.Email))
	}
	return nil
}
