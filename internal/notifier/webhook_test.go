package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

func TestWebhookConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  WebhookConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  WebhookConfig{},
			wantErr: true,
			errMsg:  "webhook URL is required",
		},
		{
			name: "non-http scheme rejected",
			config: WebhookConfig{
				URL: "ftp://hooks.example.com/notify",
			},
			wantErr: true,
			errMsg:  "must be http(s)",
		},
		{
			name: "valid config",
			config: WebhookConfig{
				URL: "https://hooks.example.com/notify",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWebhookTransportName(t *testing.T) {
	transport := &WebhookTransport{}
	if got := transport.Name(); got != "webhook" {
		t.Errorf("Name() = %q, want %q", got, "webhook")
	}
}

func TestWebhookTransportSend(t *testing.T) {
	var received webhookPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport, err := NewWebhookTransport(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}

	msg := &Message{
		To:        "alice@example.com",
		Subject:   "overdue assets",
		PlainBody: "srv-1 is 35 days overdue",
		Class:     models.ClassReminder,
	}
	if err := transport.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	if received.Recipient != "alice@example.com" {
		t.Errorf("payload recipient = %s", received.Recipient)
	}
	if received.Class != "reminder" {
		t.Errorf("payload class = %s", received.Class)
	}
	if received.Subject != "overdue assets" {
		t.Errorf("payload subject = %s", received.Subject)
	}
}

func TestWebhookTransportStatusHandling(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{"bad request is permanent", http.StatusBadRequest, true},
		{"not found is permanent", http.StatusNotFound, true},
		{"server error is retryable", http.StatusInternalServerError, false},
		{"bad gateway is retryable", http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			transport, err := NewWebhookTransport(WebhookConfig{URL: server.URL})
			if err != nil {
				t.Fatalf("create transport: %v", err)
			}

			err = transport.Send(context.Background(), &Message{To: "alice@example.com", Class: models.ClassReminder})
			if err == nil {
				t.Fatal("send should fail")
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v for status %d", IsPermanent(err), tt.wantPermanent, tt.status)
			}
		})
	}
}
