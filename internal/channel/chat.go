package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// ChatConfig holds chat webhook configuration.
type ChatConfig struct {
	WebhookURL string `yaml:"webhook_url"` // incoming webhook URL
}

// Validate validates the chat configuration.
func (c *ChatConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// ChatSender posts messages to a chat workspace via incoming webhook.
// The recipient is a channel or user handle mentioned in the payload.
type ChatSender struct {
	config     ChatConfig
	httpClient *http.Client
}

// NewChatSender creates a chat sender.
func NewChatSender(config ChatConfig) (*ChatSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}

	return &ChatSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Channel returns the chat channel.
func (s *ChatSender) Channel() models.Channel {
	return models.ChannelChat
}

// chatMessage is the webhook payload.
type chatMessage struct {
	Channel string      `json:"channel,omitempty"`
	Blocks  []chatBlock `json:"blocks"`
}

type chatBlock struct {
	Type string    `json:"type"`
	Text *chatText `json:"text,omitempty"`
}

type chatText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Send posts a message addressed to one recipient handle.
func (s *ChatSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	payload := chatMessage{
		Channel: recipient,
		Blocks: []chatBlock{
			{
				Type: "header",
				Text: &chatText{Type: "plain_text", Text: subject, Emoji: true},
			},
			{
				Type: "section",
				Text: &chatText{Type: "mrkdwn", Text: body},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", PermanentError("failed to marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", PermanentError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", TransientError("chat webhook request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("chat", resp); err != nil {
		return "", err
	}

	// Incoming webhooks return no message id; use the request id
	// header when the provider sets one.
	return resp.Header.Get("X-Request-Id"), nil
}

// Close is a no-op for the chat sender.
func (s *ChatSender) Close() error {
	return nil
}
