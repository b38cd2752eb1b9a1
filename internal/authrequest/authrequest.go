// Package authrequest implements the device login approval workflow: the
// auth request entity, the single-request update processor, and the batch
// processor that fans a set of admin decisions across pending requests.
//
// An auth request is decided at most once. The transition guard (expiry,
// spent, id match, organization scope) is evaluated before any state is
// produced, and a successful decision yields a new value — the pending
// request handed in is never mutated.
package authrequest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCannotBeProcessed covers every guard failure: expired, already
	// decided or consumed, update id mismatch, or organization scope
	// mismatch. Callers deliberately cannot tell which — the failure
	// surface is uniform so a denied-or-expired request leaks nothing.
	ErrCannotBeProcessed = errors.New("auth request cannot be processed")

	// ErrMissingKey is returned when an approval carries no encrypted key.
	// Distinct from ErrCannotBeProcessed so the API can say "approval
	// requires a key" instead of "request no longer valid".
	ErrMissingKey = errors.New("approved auth request requires a key")
)

// ProcessingError wraps a guard or validation failure with the id of the
// request that failed, so a batch error handler can attribute it.
type ProcessingError struct {
	RequestID uuid.UUID
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("auth request %s: %v", e.RequestID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// AuthRequest is a pending or resolved request for a device to be granted
// decryption material via an admin's approval.
//
// Approved, ResponseDate, and AuthenticationDate are write-once: they are
// set by exactly one successful Process (or, for AuthenticationDate, by the
// consumption flow) and never overwritten.
type AuthRequest struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	OrganizationID     *uuid.UUID // Nil for user-to-user requests; set for admin approval flows.
	OrganizationUserID uuid.UUID  // Membership the decision is attributed to in the event log.

	RequestDeviceType       DeviceType
	RequestDeviceIdentifier string
	RequestIPAddress        string

	// Key is the ciphertext blob delivered by the approver.
	// Empty until (and unless) the request is approved.
	Key string

	Approved           *bool // Nil = pending, true = approved, false = denied.
	CreationDate       time.Time
	ResponseDate       *time.Time
	AuthenticationDate *time.Time
}

// Spent reports whether the request has already received a terminal decision
// or been consumed by a device. A spent request can never be processed again.
func (r *AuthRequest) Spent() bool {
	return r.Approved != nil || r.ResponseDate != nil || r.AuthenticationDate != nil
}

// Expired reports whether the request is past its expiration window at the
// given instant. Expiry is a function of time, not a stored flag.
func (r *AuthRequest) Expired(expiration time.Duration, now time.Time) bool {
	return now.After(r.CreationDate.Add(expiration))
}

// IsApproved reports whether the request has been approved.
func (r *AuthRequest) IsApproved() bool {
	return r.Approved != nil && *r.Approved
}

// DeviceLabel renders the requesting device for human consumption:
// "{device type} - {identifier}", or just the device type when the
// identifier is empty.
func (r *AuthRequest) DeviceLabel() string {
	if r.RequestDeviceIdentifier == "" {
		return r.RequestDeviceType.String()
	}
	return fmt.Sprintf("%s - %s", r.RequestDeviceType, r.RequestDeviceIdentifier)
}

// withDecision returns a copy of the request carrying the terminal decision.
// The receiver is left untouched.
func (r *AuthRequest) withDecision(approved bool, key string, now time.Time) *AuthRequest {
	decided := *r
	decided.Approved = &approved
	decided.ResponseDate = &now
	if approved {
		decided.Key = key
	}
	return &decided
}

// Update is a proposed decision for one auth request. Approved is a plain
// bool — the caller is always deciding, there is no "leave pending" update.
// Key must be set iff Approved is true.
type Update struct {
	ID       uuid.UUID
	Approved bool
	Key      string
}

// Config scopes a processor (or batch) to one organization and carries the
// expiration window applied to every request it evaluates.
type Config struct {
	OrganizationID uuid.UUID
	Expiration     time.Duration
}
