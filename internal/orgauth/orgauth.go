// Package orgauth implements the admin-console command for responding to
// organization members' device login requests. It orchestrates the batch
// processor over the pending requests, then drives persistence, push, email,
// and event logging in that order — persistence first, so a crash between
// phases leaves recoverable state.
package orgauth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/authrequest"
)

// User is the slice of the account record this package needs: where to send
// the approval email.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// AuthRequestStore is the persistence contract for auth requests.
type AuthRequestStore interface {
	// GetManyPendingByIDs returns the organization's pending admin-approval
	// requests matching the given ids. Requests belonging to another
	// organization are never returned.
	GetManyPendingByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*authrequest.AuthRequest, error)
	// UpdateMany persists the decided requests in one bulk write. The write
	// must be conditional on the stored row still being pending, so a racing
	// second decision loses instead of overwriting.
	UpdateMany(ctx context.Context, requests []*authrequest.AuthRequest) error
}

// UserStore resolves users for email delivery.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
}

// PushSender delivers the decided request to the requesting device.
type PushSender interface {
	PushAuthRequestResponse(ctx context.Context, processed *authrequest.AuthRequest) error
}

// Mailer sends the trusted-device approval email.
type Mailer interface {
	SendTrustedDeviceAdminApprovalEmail(ctx context.Context, email string, respondedAt time.Time, requestIP, deviceLabel string) error
}
