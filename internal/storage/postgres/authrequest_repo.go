package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vaultum/keygate/internal/authrequest"
)

// ErrNotFound is returned when an auth request does not exist within the
// requesting organization.
var ErrNotFound = errors.New("auth request not found")

// pendingClause selects undecided rows only. A row with any decision column
// set has been answered or consumed and is no longer eligible for updates.
const pendingClause = "approved IS NULL AND response_date IS NULL AND authentication_date IS NULL"

// AuthRequestRepository implements storage.AuthRequestStore with GORM.
type AuthRequestRepository struct {
	db *gorm.DB
}

// NewAuthRequestRepository creates an AuthRequestRepository.
func NewAuthRequestRepository(db *gorm.DB) *AuthRequestRepository {
	return &AuthRequestRepository{db: db}
}

// Create persists a new pending auth request.
func (r *AuthRequestRepository) Create(ctx context.Context, req *authrequest.AuthRequest) error {
	model := toAuthRequestModel(req)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating auth request: %w", err)
	}
	return nil
}

// Get retrieves one of the organization's auth requests by ID.
func (r *AuthRequestRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*authrequest.AuthRequest, error) {
	var model AuthRequestModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting auth request: %w", err)
	}
	return toAuthRequestDomain(&model), nil
}

// ListPending returns the organization's undecided requests, oldest first.
func (r *AuthRequestRepository) ListPending(ctx context.Context, orgID uuid.UUID) ([]*authrequest.AuthRequest, error) {
	var models []AuthRequestModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where(pendingClause).
		Order("creation_date ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending auth requests: %w", err)
	}
	return toDomainSlice(models), nil
}

// GetManyPendingByIDs returns the organization's pending requests matching the
// given ids. Rows owned by another organization or already decided are
// silently excluded.
func (r *AuthRequestRepository) GetManyPendingByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*authrequest.AuthRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []AuthRequestModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Where(pendingClause).
		Order("creation_date ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("getting pending auth requests: %w", err)
	}
	return toDomainSlice(models), nil
}

// UpdateMany persists the decided requests in one transaction. Each write is
// conditional on the stored row still being pending, so a racing second
// decision loses instead of overwriting the first.
func (r *AuthRequestRepository) UpdateMany(ctx context.Context, requests []*authrequest.AuthRequest) error {
	if len(requests) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, req := range requests {
			res := tx.Model(&AuthRequestModel{}).
				Where("id = ?", req.ID).
				Where(pendingClause).
				Updates(map[string]any{
					"approved":      req.Approved,
					"key":           req.Key,
					"response_date": req.ResponseDate,
				})
			if res.Error != nil {
				return fmt.Errorf("updating auth request %s: %w", req.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("updating auth request %s: %w", req.ID, ErrNotFound)
			}
		}
		return nil
	})
}

// DeleteExpired removes undecided requests created before the cutoff.
func (r *AuthRequestRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where(pendingClause).
		Where("creation_date < ?", cutoff).
		Delete(&AuthRequestModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting expired auth requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toDomainSlice(models []AuthRequestModel) []*authrequest.AuthRequest {
	out := make([]*authrequest.AuthRequest, 0, len(models))
	for i := range models {
		out = append(out, toAuthRequestDomain(&models[i]))
	}
	return out
}
