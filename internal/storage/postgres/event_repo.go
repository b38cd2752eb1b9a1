package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vaultum/keygate/internal/events"
)

// EventRepository implements events.EventStore with GORM.
// The table is append-only: no update or delete paths exist.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates an EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts the batch in one statement.
func (r *EventRepository) Append(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	models := make([]OrganizationEventModel, 0, len(evs))
	for _, ev := range evs {
		models = append(models, toEventModel(ev))
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("appending organization events: %w", err)
	}
	return nil
}
