package notifier

import (
	"context"
	"strings"
	"testing"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  EmailConfig{},
			wantErr: true,
			errMsg:  "SMTP host is required",
		},
		{
			name: "missing port",
			config: EmailConfig{
				Host: "smtp.example.com",
				From: "staleguard@example.com",
			},
			wantErr: true,
			errMsg:  "SMTP port is required",
		},
		{
			name: "missing from",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
			},
			wantErr: true,
			errMsg:  "from address is required",
		},
		{
			name: "valid config",
			config: EmailConfig{
				Host: "smtp.example.com",
				Port: 587,
				From: "staleguard@example.com",
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

func TestEmailTransportName(t *testing.T) {
	transport := &EmailTransport{}
	if got := transport.Name(); got != "email" {
		t.Errorf("Name() = %q, want %q", got, "email")
	}
}

func TestEmailTransport_InvalidRecipientIsPermanent(t *testing.T) {
	transport, err := NewEmailTransport(EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "staleguard@example.com",
	})
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}

	err = transport.Send(context.Background(), &Message{To: "not an address", Class: models.ClassReminder})
	if err == nil {
		t.Fatal("send should fail for a malformed recipient")
	}
	if !IsPermanent(err) {
		t.Error("malformed recipient should fail permanently, not retry")
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	transport := &EmailTransport{config: EmailConfig{From: "StaleGuard <staleguard@example.com>"}}

	msg := &Message{
		To:        "alice@example.com",
		Subject:   "overdue assets",
		PlainBody: "plain body",
		HTMLBody:  "<p>html body</p>",
		Class:     models.ClassReminder,
	}
	body := string(transport.buildMIMEMessage(msg))

	for _, want := range []string{
		"From: StaleGuard <staleguard@example.com>",
		"To: alice@example.com",
		"Subject: overdue assets",
		"multipart/alternative",
		"text/plain; charset=UTF-8",
		"text/html; charset=UTF-8",
		"plain body",
		"<p>html body</p>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("MIME message missing %q", want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"Alice <alice@example.com>", "alice@example.com"},
		{"<alice@example.com>", "alice@example.com"},
	}
	for _, tt := range tests {
		if got := extractEmail(tt.in); got != tt.want {
			t.Errorf("extractEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
