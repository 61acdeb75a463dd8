package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string `yaml:"host"`     // SMTP server host
	Port     int    `yaml:"port"`     // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string `yaml:"username"` // SMTP username (optional)
	Password string `yaml:"password"` // SMTP password (optional)
	From     string `yaml:"from"`     // From address
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// EmailSender delivers messages via SMTP, one recipient per send.
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates an email sender.
func NewEmailSender(config EmailConfig) (*EmailSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	return &EmailSender{config: config}, nil
}

// Channel returns the email channel.
func (e *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers a message to one recipient. An unparseable recipient
// address is a permanent failure; connection and protocol errors are
// transient.
func (e *EmailSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	addr, err := mail.ParseAddress(recipient)
	if err != nil {
		return "", PermanentError(fmt.Sprintf("invalid recipient address %q", recipient), err)
	}

	// Message-ID doubles as the external id; SMTP has no provider-side
	// identifier to return.
	messageID := fmt.Sprintf("<%s@shipsentry>", uuid.New().String())
	msg := e.buildMessage(addr.Address, subject, body, messageID)

	if err := e.sendMail(ctx, addr.Address, msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Close is a no-op for the email sender.
func (e *EmailSender) Close() error {
	return nil
}

// buildMessage builds a plain text RFC 5322 message.
func (e *EmailSender) buildMessage(to, subject, body, messageID string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	return []byte(msg.String())
}

// sendMail sends the message via SMTP.
func (e *EmailSender) sendMail(ctx context.Context, recipient string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	tlsConfig := &tls.Config{
		ServerName: e.config.Host,
	}

	var client *smtp.Client
	var err error

	// Port 465 is implicit TLS; anything else negotiates STARTTLS.
	if e.config.Port == 465 {
		client, err = e.connectImplicitTLS(addr, tlsConfig)
	} else {
		client, err = e.connectSTARTTLS(ctx, addr, tlsConfig)
	}
	if err != nil {
		return TransientError("SMTP connection failed", err)
	}
	defer client.Close()

	if e.config.Username != "" && e.config.Password != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			// Bad credentials will not fix themselves between retries.
			return PermanentError("SMTP authentication failed", err)
		}
	}

	if err := client.Mail(e.extractEmail(e.config.From)); err != nil {
		return TransientError("failed to set sender", err)
	}

	if err := client.Rcpt(recipient); err != nil {
		// The server rejected this mailbox.
		return PermanentError(fmt.Sprintf("recipient %s rejected", recipient), err)
	}

	w, err := client.Data()
	if err != nil {
		return TransientError("failed to start data", err)
	}
	if _, err := w.Write(msg); err != nil {
		return TransientError("failed to write message", err)
	}
	if err := w.Close(); err != nil {
		return TransientError("failed to close data", err)
	}

	if err := client.Quit(); err != nil {
		// The message was accepted; a failed QUIT is not a delivery failure.
		return nil
	}
	return nil
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (e *EmailSender) connectImplicitTLS(addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	return smtp.NewClient(conn, e.config.Host)
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func (e *EmailSender) connectSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// extractEmail extracts the email address from a "Name <email>" format.
func (e *EmailSender) extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 {
			return addr[start+1 : end]
		}
	}
	return addr
}
