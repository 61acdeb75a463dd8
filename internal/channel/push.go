package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// PushConfig holds push provider API configuration.
type PushConfig struct {
	APIURL string `yaml:"api_url"` // provider push endpoint
	APIKey string `yaml:"api_key"` // server key
}

// Validate validates the push configuration.
func (c *PushConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// PushSender delivers messages through a mobile push provider.
// The recipient is a device token.
type PushSender struct {
	config     PushConfig
	httpClient *http.Client
}

// NewPushSender creates a push sender.
func NewPushSender(config PushConfig) (*PushSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push config: %w", err)
	}

	return &PushSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Channel returns the push channel.
func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

type pushRequest struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushResponse struct {
	ID string `json:"id"`
}

// Send delivers a push message to one device token. Gone and
// not-found responses mean the token is unregistered, which no retry
// will fix.
func (s *PushSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	if recipient == "" {
		return "", PermanentError("empty device token", nil)
	}

	payload := pushRequest{Token: recipient, Title: subject, Body: body}
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
		return "", TransientError("push API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", PermanentError(fmt.Sprintf("device token unregistered: status %d", resp.StatusCode), nil)
	}
	if err := classifyHTTPStatus("push", resp); err != nil {
		return "", err
	}

	var result pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil
	}
	return result.ID, nil
}

// Close is a no-op for the push sender.
func (s *PushSender) Close() error {
	return nil
}
