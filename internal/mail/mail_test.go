package mail

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestBuildEmailBody(t *testing.T) {
	body := string(buildEmailBody(
		"keygate@example.com",
		[]string{"member@example.com"},
		"Device approved",
		"Your login request was approved.\r\n",
	))

	wantHeaders := []string{
		"From: keygate@example.com\r\n",
		"To: member@example.com\r\n",
		"Subject: Device approved\r\n",
		"MIME-Version: 1.0\r\n",
		"Content-Type: text/plain; charset=\"utf-8\"\r\n",
	}
	for _, h := range wantHeaders {
		if !strings.Contains(body, h) {
			t.Errorf("body missing header %q", h)
		}
	}

	// Headers and text separated by a blank line.
	if !strings.Contains(body, "\r\n\r\nYour login request was approved.") {
		t.Error("body missing header/text separator")
	}
}

func TestSender_RejectsEmptyRecipient(t *testing.T) {
	s := NewSender(SMTPConfig{Host: "smtp.example.com", From: "keygate@example.com"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := s.SendTrustedDeviceAdminApprovalEmail(context.Background(), "", time.Now(), "203.0.113.7", "Android")
	if err == nil {
		t.Fatal("expected error for empty recipient address")
	}
}

func TestNewSender_DefaultPort(t *testing.T) {
	s := NewSender(SMTPConfig{Host: "smtp.example.com"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if s.config.Port != 587 {
		t.Errorf("port = %d, want 587 default", s.config.Port)
	}
}
