package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// WebhookConfig holds generic outbound webhook configuration.
type WebhookConfig struct {
	Secret  string            `yaml:"secret"`  // HMAC signing key (optional)
	Headers map[string]string `yaml:"headers"` // extra request headers
}

// WebhookSender posts messages to arbitrary HTTP endpoints. The
// recipient is the target URL, so one sender serves every configured
// webhook consumer.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	return &WebhookSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the webhook channel.
func (s *WebhookSender) Channel() models.Channel {
	return models.ChannelWebhook
}

// webhookPayload is the JSON body delivered to consumers.
type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

// Send posts the message to the recipient URL. An invalid or
// non-HTTPS URL is a permanent failure. When a secret is configured,
// the body is signed with HMAC-SHA256 in the X-ShipSentry-Signature
// header so consumers can verify authenticity.
func (s *WebhookSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	target, err := url.Parse(recipient)
	if err != nil || target.Scheme != "https" {
		return "", PermanentError(fmt.Sprintf("invalid webhook URL %q, must be HTTPS", recipient), err)
	}

	payload := webhookPayload{
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", PermanentError("failed to marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(jsonData))
	if err != nil {
		return "", PermanentError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	if s.config.Secret != "" {
		req.Header.Set("X-ShipSentry-Signature", sign(s.config.Secret, jsonData))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", TransientError("webhook request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("webhook", resp); err != nil {
		return "", err
	}
	return resp.Header.Get("X-Request-Id"), nil
}

// Close is a no-op for the webhook sender.
func (s *WebhookSender) Close() error {
	return nil
}

// sign computes the hex HMAC-SHA256 of the payload.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
