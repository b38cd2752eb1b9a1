// Package events implements organization event logging for admin actions.
// Events are append-only: once logged they are never updated or deleted.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened to an organization resource.
type Type string

const (
	// TypeOrganizationUserApprovedAuthRequest records an admin approving a
	// member device's login request.
	TypeOrganizationUserApprovedAuthRequest Type = "organization_user_approved_auth_request"
	// TypeOrganizationUserRejectedAuthRequest records an admin rejecting a
	// member device's login request.
	TypeOrganizationUserRejectedAuthRequest Type = "organization_user_rejected_auth_request"
)

// Event is one organization event row.
type Event struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	OrganizationUserID uuid.UUID
	AuthRequestID      uuid.UUID
	Type               Type
	Date               time.Time
}

// Service is the contract for logging organization events. Implementations
// must accept the whole batch in one call — event logging is a bulk
// operation, not a per-item dispatch.
type Service interface {
	LogOrganizationUserEvents(ctx context.Context, evs []Event) error
}

// EventStore is the persistence contract for event rows.
type EventStore interface {
	Append(ctx context.Context, evs []Event) error
}

// StoreService appends events to an EventStore and mirrors each batch to the
// structured log.
type StoreService struct {
	store  EventStore
	logger *slog.Logger
}

// NewStoreService creates a store-backed event service.
func NewStoreService(store EventStore, logger *slog.Logger) *StoreService {
	return &StoreService{store: store, logger: logger}
}

// LogOrganizationUserEvents persists the batch in one append.
func (s *StoreService) LogOrganizationUserEvents(ctx context.Context, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	if err := s.store.Append(ctx, evs); err != nil {
		s.logger.ErrorContext(ctx, "failed to append organization events",
			slog.Int("count", len(evs)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.InfoContext(ctx, "organization events logged",
		slog.Int("count", len(evs)),
		slog.String("organization_id", evs[0].OrganizationID.String()),
	)
	return nil
}

// LogService writes events to the structured log only. Used when no event
// store is configured.
type LogService struct {
	logger *slog.Logger
}

// NewLogService creates a log-only event service.
func NewLogService(logger *slog.Logger) *LogService {
	return &LogService{logger: logger}
}

// LogOrganizationUserEvents emits one log line per event.
func (s *LogService) LogOrganizationUserEvents(ctx context.Context, evs []Event) error {
	for _, ev := range evs {
		s.logger.InfoContext(ctx, "organization event",
			slog.String("type", string(ev.Type)),
			slog.String("organization_id", ev.OrganizationID.String()),
			slog.String("organization_user_id", ev.OrganizationUserID.String()),
			slog.String("auth_request_id", ev.AuthRequestID.String()),
		)
	}
	return nil
}
