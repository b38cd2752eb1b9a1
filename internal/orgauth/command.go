package orgauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vaultum/keygate/internal/authrequest"
	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/observability"
)

// Command responds to organization auth requests on behalf of an admin.
// Push and mail may be nil — the corresponding phase is skipped.
type Command struct {
	authRequests AuthRequestStore
	users        UserStore
	push         PushSender
	mail         Mailer
	events       events.Service
	metrics      *observability.Metrics
	logger       *slog.Logger
	expiration   time.Duration
}

// NewCommand creates the admin approval command. expiration is the window
// after which an unanswered admin request can no longer be decided.
func NewCommand(
	authRequests AuthRequestStore,
	users UserStore,
	push PushSender,
	mail Mailer,
	evs events.Service,
	metrics *observability.Metrics,
	logger *slog.Logger,
	expiration time.Duration,
) *Command {
	return &Command{
		authRequests: authRequests,
		users:        users,
		push:         push,
		mail:         mail,
		events:       evs,
		metrics:      metrics,
		logger:       logger,
		expiration:   expiration,
	}
}

// Update applies a single decision. Returns the per-item processing error
// (authrequest.ErrCannotBeProcessed / ErrMissingKey) so the API layer can map
// it to a response; side effects follow the same pipeline as UpdateMany.
func (c *Command) Update(ctx context.Context, orgID uuid.UUID, update authrequest.Update) error {
	var itemErr error
	if err := c.updateMany(ctx, orgID, []authrequest.Update{update}, func(perr *authrequest.ProcessingError) {
		itemErr = perr
	}); err != nil {
		return err
	}
	return itemErr
}

// UpdateMany applies a batch of decisions with per-item failure isolation.
// Item failures are logged and counted, never returned: one stale or
// mismatched request does not abort the rest of the batch. Collaborator
// failures (save, push, mail, events) do propagate.
func (c *Command) UpdateMany(ctx context.Context, orgID uuid.UUID, updates []authrequest.Update) error {
	return c.updateMany(ctx, orgID, updates, nil)
}

func (c *Command) updateMany(ctx context.Context, orgID uuid.UUID, updates []authrequest.Update, onError authrequest.ErrorHandler) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}

	requests, err := c.authRequests.GetManyPendingByIDs(ctx, orgID, ids)
	if err != nil {
		return fmt.Errorf("fetching pending auth requests: %w", err)
	}
	if len(requests) == 0 {
		c.logger.DebugContext(ctx, "no pending auth requests matched",
			slog.String("organization_id", orgID.String()),
			slog.Int("updates", len(updates)),
		)
		// Still surface "not processable" to single-item callers.
		if onError != nil {
			for _, id := range ids {
				onError(&authrequest.ProcessingError{RequestID: id, Err: authrequest.ErrCannotBeProcessed})
			}
		}
		return nil
	}

	batch := authrequest.NewBatch(requests, updates, authrequest.Config{
		OrganizationID: orgID,
		Expiration:     c.expiration,
	})

	batch.Process(func(perr *authrequest.ProcessingError) {
		c.logger.WarnContext(ctx, "auth request not processed",
			slog.String("auth_request_id", perr.RequestID.String()),
			slog.String("organization_id", orgID.String()),
			slog.String("reason", perr.Err.Error()),
		)
		if c.metrics != nil {
			c.metrics.ProcessingFailures.WithLabelValues(failureReason(perr)).Inc()
		}
		if onError != nil {
			onError(perr)
		}
	})

	if err := batch.Save(ctx, c.authRequests.UpdateMany); err != nil {
		return fmt.Errorf("saving processed auth requests: %w", err)
	}

	if c.push != nil {
		if err := batch.SendPushNotifications(ctx, c.pushResponse); err != nil {
			return fmt.Errorf("pushing auth request responses: %w", err)
		}
	}
	if c.mail != nil {
		if err := batch.SendApprovalEmails(ctx, c.sendApprovalEmail); err != nil {
			return fmt.Errorf("sending approval emails: %w", err)
		}
	}
	if err := batch.LogEvents(ctx, c.events.LogOrganizationUserEvents); err != nil {
		return fmt.Errorf("logging organization events: %w", err)
	}

	c.recordOutcomes(batch.Processed())

	c.logger.InfoContext(ctx, "auth request batch processed",
		slog.String("organization_id", orgID.String()),
		slog.Int("updates", len(updates)),
		slog.Int("processed", len(batch.Processed())),
	)
	return nil
}

func (c *Command) pushResponse(ctx context.Context, processed *authrequest.AuthRequest) error {
	if err := c.push.PushAuthRequestResponse(ctx, processed); err != nil {
		return fmt.Errorf("pushing response for auth request %s: %w", processed.ID, err)
	}
	if c.metrics != nil {
		c.metrics.PushSends.Inc()
	}
	return nil
}

func (c *Command) sendApprovalEmail(ctx context.Context, processed *authrequest.AuthRequest, deviceLabel string) error {
	user, err := c.users.Get(ctx, processed.UserID)
	if err != nil {
		return fmt.Errorf("resolving user %s for approval email: %w", processed.UserID, err)
	}
	// Guard passed, so ResponseDate is always set here.
	if err := c.mail.SendTrustedDeviceAdminApprovalEmail(ctx, user.Email, *processed.ResponseDate, processed.RequestIPAddress, deviceLabel); err != nil {
		return fmt.Errorf("sending approval email for auth request %s: %w", processed.ID, err)
	}
	if c.metrics != nil {
		c.metrics.EmailSends.Inc()
	}
	return nil
}

func (c *Command) recordOutcomes(processed []*authrequest.AuthRequest) {
	if c.metrics == nil {
		return
	}
	for _, p := range processed {
		outcome := "denied"
		if p.IsApproved() {
			outcome = "approved"
		}
		c.metrics.RequestsProcessed.WithLabelValues(outcome).Inc()
	}
}

func failureReason(perr *authrequest.ProcessingError) string {
	if errors.Is(perr, authrequest.ErrMissingKey) {
		return "missing_key"
	}
	return "cannot_be_processed"
}
