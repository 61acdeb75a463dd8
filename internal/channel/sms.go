package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// SMSConfig holds SMS provider API configuration.
type SMSConfig struct {
	APIURL string `yaml:"api_url"` // provider message endpoint
	APIKey string `yaml:"api_key"` // bearer token
	From   string `yaml:"from"`    // sender number or alphanumeric id
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.From == "" {
		return fmt.Errorf("from number is required")
	}
	return nil
}

// e164Pattern matches international phone numbers in E.164 form.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SMSSender delivers messages through an SMS provider HTTP API.
type SMSSender struct {
	config     SMSConfig
	httpClient *http.Client
}

// NewSMSSender creates an SMS sender.
func NewSMSSender(config SMSConfig) (*SMSSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms config: %w", err)
	}

	return &SMSSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Channel returns the sms channel.
func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

// smsRequest is the provider API payload. The subject is dropped:
// SMS has no subject line.
type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers a message to one phone number. A recipient that is
// not a valid E.164 number is a permanent failure.
func (s *SMSSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	if !e164Pattern.MatchString(recipient) {
		return "", PermanentError(fmt.Sprintf("invalid phone number %q", recipient), nil)
	}

	payload := smsRequest{From: s.config.From, To: recipient, Body: body}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", PermanentError("failed to marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", PermanentError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", TransientError("sms API request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("sms", resp); err != nil {
		return "", err
	}

	var result smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Accepted but unparseable response; the send still succeeded.
		return "", nil
	}
	return result.MessageID, nil
}

// Close is a no-op for the SMS sender.
func (s *SMSSender) Close() error {
	return nil
}
