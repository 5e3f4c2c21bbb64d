// Package notify emails exported care logs to a recipient over authenticated SMTP.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"

	"homecare-ai/internal/config"
	"homecare-ai/internal/stage"
)

type Email struct {
	To             string
	Subject        string
	Body           string
	AttachmentPath string
}

type deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Mailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
	dial   func(cfg config.MailConfig) (deliverer, error)
}

func NewMailer(cfg config.MailConfig, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger, dial: newSMTPClient}
}

// Send delivers one message with the attachment. There is no retry.
func (m *Mailer) Send(ctx context.Context, email Email) error {
	if m.cfg.Host == "" || m.cfg.Username == "" || m.cfg.Password == "" {
		return stage.New(stage.Notify, stage.KindConfiguration, "smtp host, username and password are required")
	}

	info, err := os.Stat(email.AttachmentPath)
	if err != nil {
		return stage.Wrap(stage.Notify, stage.KindNotification, "attachment is not readable", err)
	}
	if info.IsDir() {
		return stage.New(stage.Notify, stage.KindNotification, "attachment is a directory")
	}

	msg, err := m.buildMessage(email)
	if err != nil {
		return stage.Wrap(stage.Notify, stage.KindNotification, "build message failed", err)
	}

	client, err := m.dial(m.cfg)
	if err != nil {
		return stage.Wrap(stage.Notify, stage.KindNotification, "create smtp client failed", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return stage.Wrap(stage.Notify, stage.KindNotification, "send email failed", err)
	}

	m.logger.Info("email sent", "to", email.To, "attachment", filepath.Base(email.AttachmentPath))
	return nil
}

func (m *Mailer) buildMessage(email Email) (*mail.Msg, error) {
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	msg.AttachFile(email.AttachmentPath, mail.WithFileName(filepath.Base(email.AttachmentPath)))
	return msg, nil
}

func newSMTPClient(cfg config.MailConfig) (deliverer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return mail.NewClient(cfg.Host, opts...)
}
