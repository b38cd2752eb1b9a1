package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaultum/keygate/internal/authrequest"
)

// RelayConfig configures the HTTP push relay.
type RelayConfig struct {
	URL     string
	Token   string        // Bearer token for the relay endpoint. Optional.
	Timeout time.Duration // Default: 10s.
}

// Relay sends decided requests to an HTTP push relay endpoint.
type Relay struct {
	cfg        RelayConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRelay creates a push relay client.
func NewRelay(cfg RelayConfig, logger *slog.Logger) *Relay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Relay{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			// Do not follow redirects — prevents delivery to unexpected hosts.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// relayPayload is the wire format posted to the relay.
type relayPayload struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Approved     bool       `json:"approved"`
	Key          string     `json:"key,omitempty"`
	ResponseDate *time.Time `json:"response_date,omitempty"`
}

// Send posts the decided request to the relay endpoint.
func (r *Relay) Send(ctx context.Context, processed *authrequest.AuthRequest) error {
	payload := relayPayload{
		ID:           processed.ID.String(),
		UserID:       processed.UserID.String(),
		Approved:     processed.IsApproved(),
		Key:          processed.Key,
		ResponseDate: processed.ResponseDate,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Keygate-Push/1.0")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending to relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, string(respBody))
	}

	r.logger.DebugContext(ctx, "auth request response relayed",
		slog.String("auth_request_id", processed.ID.String()),
	)
	return nil
}
