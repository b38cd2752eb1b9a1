package push

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/authrequest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedRequest() *authrequest.AuthRequest {
	approved := true
	responded := time.Now().UTC()
	return &authrequest.AuthRequest{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Key:          "2.encrypted-key",
		Approved:     &approved,
		ResponseDate: &responded,
	}
}

func TestRelay_SendsDecision(t *testing.T) {
	processed := approvedRequest()

	var gotAuth string
	var gotPayload relayPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	relay := NewRelay(RelayConfig{URL: srv.URL, Token: "relay-token"}, testLogger())
	if err := relay.Send(context.Background(), processed); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "Bearer relay-token" {
		t.Errorf("authorization = %q, want bearer token", gotAuth)
	}
	if gotPayload.ID != processed.ID.String() {
		t.Errorf("payload id = %q, want %q", gotPayload.ID, processed.ID)
	}
	if !gotPayload.Approved {
		t.Error("payload should carry the approval")
	}
	if gotPayload.Key != processed.Key {
		t.Errorf("payload key = %q, want %q", gotPayload.Key, processed.Key)
	}
}

func TestRelay_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relay unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	relay := NewRelay(RelayConfig{URL: srv.URL}, testLogger())
	if err := relay.Send(context.Background(), approvedRequest()); err == nil {
		t.Fatal("expected error for non-2xx relay response")
	}
}

func TestRelay_UnreachableEndpoint(t *testing.T) {
	relay := NewRelay(RelayConfig{URL: "http://127.0.0.1:0", Timeout: time.Second}, testLogger())
	if err := relay.Send(context.Background(), approvedRequest()); err == nil {
		t.Fatal("expected error for unreachable relay")
	}
}

func TestHub_NotifyWithNoSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	if n := hub.Notify(context.Background(), approvedRequest()); n != 0 {
		t.Errorf("notified = %d, want 0 with nobody waiting", n)
	}
}
