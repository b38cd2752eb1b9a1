// Package mail sends the trusted-device approval email over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"
)

// passwordEnvVar names the environment variable holding the SMTP password.
// The password is never stored in configuration files.
const passwordEnvVar = "KEYGATE_SMTP_PASSWORD"

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	From     string
	TLS      bool
}

// Sender sends approval emails via SMTP. It implements orgauth.Mailer.
type Sender struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSender creates an SMTP-based mail sender.
func NewSender(cfg SMTPConfig, logger *slog.Logger) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Sender{config: cfg, logger: logger}
}

// SendTrustedDeviceAdminApprovalEmail notifies the member that an admin
// approved their device's login request.
func (s *Sender) SendTrustedDeviceAdminApprovalEmail(ctx context.Context, email string, respondedAt time.Time, requestIP, deviceLabel string) error {
	if email == "" {
		return fmt.Errorf("approval email: recipient address is empty")
	}

	subject := "Device approved by your organization admin"
	text := fmt.Sprintf(
		"Your login request was approved by an administrator.\r\n"+
			"\r\n"+
			"Device: %s\r\n"+
			"IP address: %s\r\n"+
			"Approved at: %s\r\n"+
			"\r\n"+
			"If you did not request this login, contact your administrator immediately.\r\n",
		deviceLabel, requestIP, respondedAt.UTC().Format(time.RFC1123),
	)

	recipients := []string{email}
	body := buildEmailBody(s.config.From, recipients, subject, text)
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	password := os.Getenv(passwordEnvVar)
	var auth smtp.Auth
	if s.config.Username != "" && password != "" {
		auth = smtp.PlainAuth("", s.config.Username, password, s.config.Host)
	}

	var err error
	if s.config.TLS {
		err = s.sendTLS(addr, auth, s.config.From, recipients, body)
	} else {
		err = smtp.SendMail(addr, auth, s.config.From, recipients, body)
	}
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "approval email sent",
		slog.String("device", deviceLabel),
	)
	return nil
}

func (s *Sender) sendTLS(addr string, auth smtp.Auth, from string, to []string, body []byte) error {
	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("tls dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

func buildEmailBody(from string, to []string, subject, text string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(text)
	return []byte(b.String())
}
