package authrequest

import (
	"context"
	"time"
)

// PushFunc delivers the decided request to the requesting device's other
// channels (push relay, websocket hub).
type PushFunc func(ctx context.Context, processed *AuthRequest) error

// EmailFunc sends the new-device approval email. deviceLabel is the
// human-readable rendering of the requesting device.
type EmailFunc func(ctx context.Context, processed *AuthRequest, deviceLabel string) error

// Processor validates and applies one decision to one auth request.
// Process is pure logic: it performs no I/O and never blocks.
type Processor struct {
	request *AuthRequest
	update  *Update // Nil when no update matched this request's id.
	config  Config
}

// NewProcessor pairs a request with its proposed update. update may be nil;
// the missing pairing is reported by Process as ErrCannotBeProcessed.
func NewProcessor(request *AuthRequest, update *Update, cfg Config) *Processor {
	return &Processor{
		request: request,
		update:  update,
		config:  cfg,
	}
}

// canBeProcessed is the transition guard. All-or-nothing: an expired request,
// a spent request, an id mismatch, and a scope mismatch are indistinguishable
// to the caller.
func (p *Processor) canBeProcessed(now time.Time) bool {
	if p.update == nil {
		return false
	}
	if p.request.Expired(p.config.Expiration, now) {
		return false
	}
	if p.request.Spent() {
		return false
	}
	if p.update.ID != p.request.ID {
		return false
	}
	if p.request.OrganizationID == nil || *p.request.OrganizationID != p.config.OrganizationID {
		return false
	}
	return true
}

// Process evaluates the guard and, if it passes, returns a new AuthRequest
// value carrying the decision. The pending request passed to NewProcessor is
// never mutated; on error the returned request is nil and nothing changed.
func (p *Processor) Process(now time.Time) (*AuthRequest, error) {
	if !p.canBeProcessed(now) {
		return nil, &ProcessingError{RequestID: p.request.ID, Err: ErrCannotBeProcessed}
	}
	if p.update.Approved && p.update.Key == "" {
		return nil, &ProcessingError{RequestID: p.request.ID, Err: ErrMissingKey}
	}
	return p.request.withDecision(p.update.Approved, p.update.Key, now), nil
}

// SendPushNotification invokes push for an approved processed request.
// Denials never notify the requesting device's out-of-band channels: there
// is no key to deliver and nothing actionable for the user's other devices.
// No-op when processed is nil, not approved, or push is nil.
func SendPushNotification(ctx context.Context, processed *AuthRequest, push PushFunc) error {
	if processed == nil || !processed.IsApproved() || push == nil {
		return nil
	}
	return push(ctx, processed)
}

// SendNewDeviceEmail invokes send for an approved processed request, passing
// the device display label. Same gating as SendPushNotification.
func SendNewDeviceEmail(ctx context.Context, processed *AuthRequest, send EmailFunc) error {
	if processed == nil || !processed.IsApproved() || send == nil {
		return nil
	}
	return send(ctx, processed, processed.DeviceLabel())
}
