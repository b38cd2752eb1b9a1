// Package push delivers decided auth requests back to the requesting device.
// Two delivery paths exist: an HTTP push relay (mobile/desktop notification
// fan-out) and a WebSocket hub for devices holding a live connection while
// they wait for the decision.
package push

import (
	"context"
	"log/slog"

	"github.com/vaultum/keygate/internal/authrequest"
)

// Sender fans a decided request out to every configured delivery path.
// Either field may be nil. It implements orgauth.PushSender.
type Sender struct {
	relay  *Relay
	hub    *Hub
	logger *slog.Logger
}

// NewSender creates a fan-out push sender.
func NewSender(relay *Relay, hub *Hub, logger *slog.Logger) *Sender {
	return &Sender{relay: relay, hub: hub, logger: logger}
}

// PushAuthRequestResponse delivers the decided request. Relay failures
// propagate; hub delivery is local and best-effort.
func (s *Sender) PushAuthRequestResponse(ctx context.Context, processed *authrequest.AuthRequest) error {
	if s.hub != nil {
		if n := s.hub.Notify(ctx, processed); n > 0 {
			s.logger.DebugContext(ctx, "auth request response delivered over websocket",
				slog.String("auth_request_id", processed.ID.String()),
				slog.Int("connections", n),
			)
		}
	}
	if s.relay != nil {
		return s.relay.Send(ctx, processed)
	}
	return nil
}
