// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/biblioteka/eventsvc/internal/config"
)

// Delivery error codes recorded on failed outcomes.
const (
	ErrorCodeInvalidRecipient = "invalid_recipient"
	ErrorCodeAuthFailed       = "auth_failed"
	ErrorCodeConnectionFailed = "connection_failed"
	ErrorCodeTimeout          = "timeout"
	ErrorCodeUnknown          = "unknown"
)

// SendResult captures one delivery attempt. Transport failures live in
// the result, not in an error return; a failed send is an outcome to
// record, not a reason to reject the event.
type SendResult struct {
	Success      bool
	ErrorMessage string
	ErrorCode    string
	DeliveredAt  *time.Time
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, to string, msg Message) SendResult
}

// SMTPMailer delivers messages over SMTP with optional STARTTLS and
// PLAIN authentication.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewSMTPMailer creates a mailer from transport configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:     cfg,
		timeout: 30 * time.Second,
	}
}

// Send delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, to string, msg Message) SendResult {
	if _, err := mail.ParseAddress(to); err != nil {
		return SendResult{
			ErrorMessage: fmt.Sprintf("invalid recipient %q: %v", to, err),
			ErrorCode:    ErrorCodeInvalidRecipient,
		}
	}

	if err := m.sendSMTP(ctx, to, m.buildMessage(to, msg)); err != nil {
		return SendResult{
			ErrorMessage: err.Error(),
			ErrorCode:    classifySendError(err),
		}
	}

	now := time.Now().UTC()
	return SendResult{Success: true, DeliveredAt: &now}
}

// buildMessage constructs the RFC 5322 message with headers.
func (m *SMTPMailer) buildMessage(to string, message Message) string {
	var msg strings.Builder

	fromName := m.cfg.FromName
	if fromName == "" {
		fromName = "Biblioteka"
	}

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, m.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", message.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if message.HTMLBody != "" {
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(message.TextBody)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(message.HTMLBody)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(message.TextBody)
	}

	return msg.String()
}

func (m *SMTPMailer) sendSMTP(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if m.cfg.User != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// The message is accepted once DATA completes; a failed QUIT is not a
	// delivery failure.
	_ = client.Quit()
	return nil
}

func classifySendError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "authentication") || strings.Contains(errStr, "auth"):
		return ErrorCodeAuthFailed
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ErrorCodeTimeout
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return ErrorCodeConnectionFailed
	default:
		return ErrorCodeUnknown
	}
}
