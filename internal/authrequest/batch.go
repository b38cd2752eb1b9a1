package authrequest

import (
	"context"
	"time"

	"github.com/vaultum/keygate/internal/events"
)

// PersistFunc saves the whole processed subset in one bulk call.
type PersistFunc func(ctx context.Context, processed []*AuthRequest) error

// LogEventsFunc records the event batch for the whole processed subset in
// one call.
type LogEventsFunc func(ctx context.Context, evs []events.Event) error

// ErrorHandler receives each per-item processing failure. Handlers must not
// assume the batch stops: iteration continues past every failure.
type ErrorHandler func(err *ProcessingError)

// Batch applies decisions to many auth requests while isolating failures per
// item: a batch of N inputs yields a processed subset of M <= N requests and
// up to N-M reported errors, independently.
//
// Phase ordering is the caller's contract: Process must complete before
// Save, and Save should complete before the notification phases so that a
// crash after persistence leaves recoverable state.
type Batch struct {
	processors []*Processor
	processed  []*AuthRequest
	config     Config
	now        func() time.Time
}

// NewBatch builds one processor per existing request, paired with the update
// whose id matches. A request with no matching update still gets a processor;
// its Process fails the guard and is routed to the error handler.
func NewBatch(requests []*AuthRequest, updates []Update, cfg Config) *Batch {
	byID := make(map[string]*Update, len(updates))
	for i := range updates {
		byID[updates[i].ID.String()] = &updates[i]
	}

	b := &Batch{
		processors: make([]*Processor, 0, len(requests)),
		config:     cfg,
		now:        time.Now,
	}
	for _, r := range requests {
		b.processors = append(b.processors, NewProcessor(r, byID[r.ID.String()], cfg))
	}
	return b
}

// WithClock overrides the batch clock. Test hook.
func (b *Batch) WithClock(now func() time.Time) *Batch {
	b.now = now
	return b
}

// Process runs every processor in input order. Failures are handed to
// onError (when non-nil) and never abort the remaining items. Chainable.
func (b *Batch) Process(onError ErrorHandler) *Batch {
	now := b.now().UTC()
	for _, p := range b.processors {
		processed, err := p.Process(now)
		if err != nil {
			if onError != nil {
				if perr, ok := err.(*ProcessingError); ok {
					onError(perr)
				}
			}
			continue
		}
		b.processed = append(b.processed, processed)
	}
	return b
}

// Processed returns the successfully processed subset in input order.
func (b *Batch) Processed() []*AuthRequest {
	return b.processed
}

// Save persists the processed subset with a single bulk call. When the
// subset is empty, persist is never invoked.
func (b *Batch) Save(ctx context.Context, persist PersistFunc) error {
	if len(b.processed) == 0 || persist == nil {
		return nil
	}
	return persist(ctx, b.processed)
}

// SendPushNotifications notifies each approved item in the processed subset,
// sequentially. A callback failure propagates immediately and the remaining
// items are not attempted — per-item partial-failure tracking for side
// effects is a known limitation of this design.
func (b *Batch) SendPushNotifications(ctx context.Context, push PushFunc) error {
	for _, processed := range b.processed {
		if err := SendPushNotification(ctx, processed, push); err != nil {
			return err
		}
	}
	return nil
}

// SendApprovalEmails sends the new-device email for each approved item in
// the processed subset, sequentially. Same failure shape as
// SendPushNotifications.
func (b *Batch) SendApprovalEmails(ctx context.Context, send EmailFunc) error {
	for _, processed := range b.processed {
		if err := SendNewDeviceEmail(ctx, processed, send); err != nil {
			return err
		}
	}
	return nil
}

// LogEvents builds the event pair for every processed item — approvals and
// denials both — and hands the whole list to logEvents in one call. When the
// processed subset is empty, logEvents is never invoked.
func (b *Batch) LogEvents(ctx context.Context, logEvents LogEventsFunc) error {
	if len(b.processed) == 0 || logEvents == nil {
		return nil
	}

	evs := make([]events.Event, 0, len(b.processed))
	for _, processed := range b.processed {
		evType := events.TypeOrganizationUserRejectedAuthRequest
		if processed.IsApproved() {
			evType = events.TypeOrganizationUserApprovedAuthRequest
		}
		var date time.Time
		if processed.ResponseDate != nil {
			date = *processed.ResponseDate
		}
		evs = append(evs, events.Event{
			OrganizationID:     b.config.OrganizationID,
			OrganizationUserID: processed.OrganizationUserID,
			AuthRequestID:      processed.ID,
			Type:               evType,
			Date:               date,
		})
	}
	return logEvents(ctx, evs)
}
