package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig holds JSON webhook configuration.
type WebhookConfig struct {
	URL string // Webhook endpoint URL
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
		return fmt.Errorf("webhook URL must be http(s)")
	}
	return nil
}

// WebhookTransport posts messages as JSON to a configured endpoint.
type WebhookTransport struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookTransport creates a new webhook transport.
func NewWebhookTransport(config WebhookConfig) (*WebhookTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}

	return &WebhookTransport{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "webhook".
func (w *WebhookTransport) Name() string {
	return "webhook"
}

// webhookPayload is the JSON body posted to the endpoint.
type webhookPayload struct {
	Recipient string `json:"recipient"`
	Class     string `json:"class"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Send posts a rendered message to the webhook endpoint. A 4xx response
// fails permanently; 5xx and transport errors are left retryable.
func (w *WebhookTransport) Send(ctx context.Context, msg *Message) error {
	payload := webhookPayload{
		Recipient: msg.To,
		Class:     string(msg.Class),
		Subject:   msg.Subject,
		Body:      msg.PlainBody,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return Permanent(err)
		}
		return err
	}

	return nil
}

// Close is a no-op for the webhook transport.
func (w *WebhookTransport) Close() error {
	return nil
}
