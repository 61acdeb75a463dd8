package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

func TestSendErrorClassification(t *testing.T) {
	transient := TransientError("timeout", errors.New("i/o timeout"))
	if !IsTransient(transient) {
		t.Error("TransientError should be transient")
	}
	if FailureReason(transient) != "timeout" {
		t.Errorf("reason = %q", FailureReason(transient))
	}
	if !strings.Contains(transient.Error(), "i/o timeout") {
		t.Errorf("error = %q, want the cause in it", transient.Error())
	}

	permanent := PermanentError("bad address", nil)
	if IsTransient(permanent) {
		t.Error("PermanentError should not be transient")
	}
	if permanent.Error() != "bad address" {
		t.Errorf("error = %q", permanent.Error())
	}

	// Unclassified errors default to transient.
	if !IsTransient(errors.New("something broke")) {
		t.Error("unclassified errors should be treated as transient")
	}
	if FailureReason(errors.New("something broke")) != "something broke" {
		t.Error("unclassified errors report their message")
	}

	// Wrapped SendErrors still classify.
	wrapped := fmt.Errorf("send: %w", permanent)
	if IsTransient(wrapped) {
		t.Error("wrapped PermanentError should not be transient")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if len(r.Channels()) != 0 {
		t.Error("new registry should be empty")
	}

	sender := &WebhookSender{config: WebhookConfig{}, httpClient: http.DefaultClient}
	r.Register(sender)

	got, ok := r.Get(models.ChannelWebhook)
	if !ok || got != Sender(sender) {
		t.Error("registered sender not returned")
	}
	if _, ok := r.Get(models.ChannelSMS); ok {
		t.Error("unregistered channel should not resolve")
	}
	if len(r.Channels()) != 1 {
		t.Errorf("channels = %v", r.Channels())
	}

	if err := r.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if len(r.Channels()) != 0 {
		t.Error("close should clear the registry")
	}
}

func TestEmailConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid",
			config: EmailConfig{Host: "smtp.example.com", Port: 587, From: "alerts@example.com"},
		},
		{
			name:    "missing host",
			config:  EmailConfig{Port: 587, From: "alerts@example.com"},
			wantErr: true,
			errMsg:  "host is required",
		},
		{
			name:    "missing port",
			config:  EmailConfig{Host: "smtp.example.com", From: "alerts@example.com"},
			wantErr: true,
			errMsg:  "port is required",
		},
		{
			name:    "missing from",
			config:  EmailConfig{Host: "smtp.example.com", Port: 587},
			wantErr: true,
			errMsg:  "from address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEmailSenderRejectsBadRecipient(t *testing.T) {
	sender, err := NewEmailSender(EmailConfig{Host: "smtp.example.com", Port: 587, From: "alerts@example.com"})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	_, err = sender.Send(context.Background(), "not an address", "s", "b")
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
	if IsTransient(err) {
		t.Error("an unparseable address is a permanent failure")
	}
}

func TestChatConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ChatConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid",
			config: ChatConfig{WebhookURL: "https://hooks.example.com/services/T0/B0/x"},
		},
		{
			name:    "missing URL",
			config:  ChatConfig{},
			wantErr: true,
			errMsg:  "webhook URL is required",
		},
		{
			name:    "http URL",
			config:  ChatConfig{WebhookURL: "http://hooks.example.com/x"},
			wantErr: true,
			errMsg:  "must use HTTPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestChatSenderSend(t *testing.T) {
	var received chatMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("X-Request-Id", "req-9")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := &ChatSender{
		config:     ChatConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	id, err := sender.Send(context.Background(), "#ops", "Alert subject", "Alert body")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "req-9" {
		t.Errorf("external id = %q, want req-9", id)
	}
	if received.Channel != "#ops" {
		t.Errorf("channel = %q", received.Channel)
	}
	if len(received.Blocks) != 2 || received.Blocks[0].Text.Text != "Alert subject" {
		t.Errorf("blocks = %+v", received.Blocks)
	}
}

func TestChatSenderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := &ChatSender{
		config:     ChatConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	_, err := sender.Send(context.Background(), "#ops", "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Error("a 500 response should be transient")
	}
}

func TestChatSenderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_blocks", http.StatusBadRequest)
	}))
	defer server.Close()

	sender := &ChatSender{
		config:     ChatConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	_, err := sender.Send(context.Background(), "#ops", "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Error("a 400 response should be permanent")
	}
	if !strings.Contains(err.Error(), "invalid_blocks") {
		t.Errorf("error = %q, want the response body in it", err.Error())
	}
}

func TestChatSenderContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	sender := &ChatSender{
		config:     ChatConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sender.Send(ctx, "#ops", "s", "b")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSMSConfigValidate(t *testing.T) {
	valid := SMSConfig{APIURL: "https://sms.example.com/messages", APIKey: "key", From: "+15550100"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	for _, tt := range []struct {
		name   string
		config SMSConfig
	}{
		{"missing url", SMSConfig{APIKey: "key", From: "+15550100"}},
		{"missing key", SMSConfig{APIURL: "https://x", From: "+15550100"}},
		{"missing from", SMSConfig{APIURL: "https://x", APIKey: "key"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSMSSenderValidatesRecipient(t *testing.T) {
	tests := []struct {
		recipient string
		valid     bool
	}{
		{"+15550100123", true},
		{"+442071838750", true},
		{"15550100123", false},
		{"+0123456", false},
		{"+1-555-0100", false},
		{"", false},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(smsResponse{MessageID: "sms-1"})
	}))
	defer server.Close()

	sender := &SMSSender{
		config:     SMSConfig{APIURL: server.URL, APIKey: "key", From: "+15550100"},
		httpClient: server.Client(),
	}

	for _, tt := range tests {
		id, err := sender.Send(context.Background(), tt.recipient, "s", "b")
		if tt.valid {
			if err != nil {
				t.Errorf("Send(%q): %v", tt.recipient, err)
			}
			if id != "sms-1" {
				t.Errorf("Send(%q) id = %q", tt.recipient, id)
			}
			continue
		}
		if err == nil {
			t.Errorf("Send(%q): expected error", tt.recipient)
			continue
		}
		if IsTransient(err) {
			t.Errorf("Send(%q): invalid number should be permanent", tt.recipient)
		}
	}
}

func TestSMSSenderSendsAuthHeader(t *testing.T) {
	var gotAuth string
	var gotBody smsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(smsResponse{MessageID: "sms-2"})
	}))
	defer server.Close()

	sender := &SMSSender{
		config:     SMSConfig{APIURL: server.URL, APIKey: "secret-key", From: "+15550100"},
		httpClient: server.Client(),
	}

	if _, err := sender.Send(context.Background(), "+15550100123", "ignored subject", "short text"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Body != "short text" || gotBody.To != "+15550100123" {
		t.Errorf("payload = %+v", gotBody)
	}
}

func TestPushSenderUnregisteredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	sender := &PushSender{
		config:     PushConfig{APIURL: server.URL, APIKey: "key"},
		httpClient: server.Client(),
	}

	_, err := sender.Send(context.Background(), "stale-token", "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Error("an unregistered token is a permanent failure")
	}

	_, err = sender.Send(context.Background(), "", "s", "b")
	if err == nil || IsTransient(err) {
		t.Error("an empty token is a permanent failure")
	}
}

func TestPushSenderRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender := &PushSender{
		config:     PushConfig{APIURL: server.URL, APIKey: "key"},
		httpClient: server.Client(),
	}

	_, err := sender.Send(context.Background(), "token-1", "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Error("a 429 response should be transient")
	}
}

func TestWebhookSenderSignsPayload(t *testing.T) {
	var gotSignature string
	var gotPayload []byte
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-ShipSentry-Signature")
		gotPayload, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := &WebhookSender{
		config:     WebhookConfig{Secret: "hunter2", Headers: map[string]string{"X-Env": "test"}},
		httpClient: server.Client(),
	}

	if _, err := sender.Send(context.Background(), server.URL, "subject", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotSignature != sign("hunter2", gotPayload) {
		t.Errorf("signature = %q does not verify", gotSignature)
	}
}

func TestWebhookSenderRejectsPlainHTTP(t *testing.T) {
	sender := NewWebhookSender(WebhookConfig{})
	_, err := sender.Send(context.Background(), "http://consumer.example.com/hook", "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Error("a non-HTTPS target is a permanent failure")
	}
}

type countingSender struct {
	calls int
}

func (c *countingSender) Channel() models.Channel { return models.ChannelEmail }
func (c *countingSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	c.calls++
	return "ok", nil
}
func (c *countingSender) Close() error { return nil }

func TestRateLimitedSenderDisabledWithoutRate(t *testing.T) {
	inner := &countingSender{}
	wrapped := NewRateLimitedSender(inner, RateLimit{})
	if wrapped != Sender(inner) {
		t.Error("a zero rate should return the inner sender unwrapped")
	}
}

func TestRateLimitedSenderHonorsCancellation(t *testing.T) {
	inner := &countingSender{}
	// One send per hundred seconds with burst 1: the second call must wait.
	wrapped := NewRateLimitedSender(inner, RateLimit{PerSecond: 0.01, Burst: 1})
	if wrapped.Channel() != models.ChannelEmail {
		t.Errorf("channel = %s", wrapped.Channel())
	}

	ctx := context.Background()
	if _, err := wrapped.Send(ctx, "a", "s", "b"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := wrapped.Send(ctx, "a", "s", "b")
	if err == nil {
		t.Fatal("expected error when the limiter wait outlives the context")
	}
	if !IsTransient(err) {
		t.Error("a cancelled limiter wait should be transient")
	}
	if inner.calls != 1 {
		t.Errorf("inner sender called %d times, want 1", inner.calls)
	}
}
