package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	UseTLS      bool
}

// SMTPMailer delivers notifications over SMTP. Port 465 uses implicit TLS,
// 587 uses STARTTLS and any other port sends in the clear.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(e *email.Email) error
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.deliver
	return m, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg ports.MailMessage) error {
	if len(msg.To) == 0 {
		return errors.New("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.build(msg)
	if err := m.send(e); err != nil {
		return fmt.Errorf("send mail %q: %w", msg.Subject, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg ports.MailMessage) *email.Email {
	e := email.NewEmail()
	if m.cfg.FromName != "" {
		e.From = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromAddress)
	} else {
		e.From = m.cfg.FromAddress
	}
	e.To = msg.To
	e.Subject = msg.Subject
	if msg.HTMLBody != "" {
		e.HTML = []byte(msg.HTMLBody)
	}
	if msg.TextBody != "" {
		e.Text = []byte(msg.TextBody)
	}
	return e
}

func (m *SMTPMailer) deliver(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	tlsConfig := &tls.Config{
		ServerName: m.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	switch {
	case m.cfg.UseTLS && m.cfg.Port == 465:
		return e.SendWithTLS(addr, auth, tlsConfig)
	case m.cfg.UseTLS:
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	default:
		return e.Send(addr, auth)
	}
}
