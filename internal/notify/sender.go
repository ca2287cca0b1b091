// Package notify delivers incident emails with approval links via SMTP.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/deploy-sentry/internal/pkg/metrics"
)

// Sender delivers notification emails via SMTP with STARTTLS.
type Sender struct {
	config config.NotificationsConfig
	auth   smtp.Auth
}

// NewSender creates a new email sender.
// Returns an error if enabled but required config is missing.
func NewSender(cfg config.NotificationsConfig) (*Sender, error) {
	if cfg.Enabled {
		if cfg.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if cfg.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
		if cfg.ToAddress == "" {
			return nil, errors.New("email sender: to address is required when enabled")
		}
	}

	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}

	var auth smtp.Auth
	if cfg.SMTPUser != "" && cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}

	return &Sender{config: cfg, auth: auth}, nil
}

// Send delivers one email to the configured operator address. When the sender
// is disabled it logs the subject and succeeds, so the incident pipeline
// keeps moving in environments without SMTP.
func (s *Sender) Send(ctx context.Context, subject, body string) error {
	logger := ctxlog.FromContext(ctx)

	if !s.config.Enabled {
		logger.Info("email sender disabled, skipping send", "subject", subject)
		metrics.NotificationsSent.WithLabelValues("skipped").Inc()
		return nil
	}

	if err := s.sendEmail(ctx, subject, body); err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		return err
	}

	logger.Info("incident email sent", "subject", subject, "to", s.config.ToAddress)
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	return nil
}

func (s *Sender) sendEmail(ctx context.Context, subject, body string) error {
	msg := s.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(extractEmail(s.config.ToAddress)); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", s.config.ToAddress))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
