package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vaultum/keygate/internal/authrequest"
	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/orgauth"
)

// OrgModel maps to the "organizations" table.
type OrgModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	Slug      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (OrgModel) TableName() string { return "organizations" }

// UserModel maps to the "users" table.
type UserModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Email     string    `gorm:"not null"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

// AuthRequestModel maps to the "auth_requests" table.
// Decision columns (approved, key, response_date, authentication_date) are
// write-once: they only move from NULL/empty to a value, never back.
type AuthRequestModel struct {
	ID                      uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID                  uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrganizationID          *uuid.UUID `gorm:"type:uuid;index"`
	OrganizationUserID      uuid.UUID  `gorm:"type:uuid"`
	RequestDeviceType       int16      `gorm:"not null"`
	RequestDeviceIdentifier string
	RequestIPAddress        string
	Key                     string `gorm:"type:text"`
	Approved                *bool
	CreationDate            time.Time `gorm:"not null;index"`
	ResponseDate            *time.Time
	AuthenticationDate      *time.Time
}

func (AuthRequestModel) TableName() string { return "auth_requests" }

// OrganizationEventModel maps to the "organization_events" table.
// No UpdatedAt or DeletedAt — the event log is append-only and immutable.
type OrganizationEventModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID     uuid.UUID `gorm:"type:uuid;not null;index"`
	OrganizationUserID uuid.UUID `gorm:"type:uuid;not null"`
	AuthRequestID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Type               string    `gorm:"not null"`
	Date               time.Time `gorm:"not null;index"`
}

func (OrganizationEventModel) TableName() string { return "organization_events" }

func toAuthRequestModel(r *authrequest.AuthRequest) AuthRequestModel {
	return AuthRequestModel{
		ID:                      r.ID,
		UserID:                  r.UserID,
		OrganizationID:          r.OrganizationID,
		OrganizationUserID:      r.OrganizationUserID,
		RequestDeviceType:       int16(r.RequestDeviceType),
		RequestDeviceIdentifier: r.RequestDeviceIdentifier,
		RequestIPAddress:        r.RequestIPAddress,
		Key:                     r.Key,
		Approved:                r.Approved,
		CreationDate:            r.CreationDate,
		ResponseDate:            r.ResponseDate,
		AuthenticationDate:      r.AuthenticationDate,
	}
}

func toAuthRequestDomain(m *AuthRequestModel) *authrequest.AuthRequest {
	return &authrequest.AuthRequest{
		ID:                      m.ID,
		UserID:                  m.UserID,
		OrganizationID:          m.OrganizationID,
		OrganizationUserID:      m.OrganizationUserID,
		RequestDeviceType:       authrequest.DeviceType(m.RequestDeviceType),
		RequestDeviceIdentifier: m.RequestDeviceIdentifier,
		RequestIPAddress:        m.RequestIPAddress,
		Key:                     m.Key,
		Approved:                m.Approved,
		CreationDate:            m.CreationDate,
		ResponseDate:            m.ResponseDate,
		AuthenticationDate:      m.AuthenticationDate,
	}
}

func toUserDomain(m *UserModel) *orgauth.User {
	return &orgauth.User{
		ID:    m.ID,
		Email: m.Email,
		Name:  m.Name,
	}
}

func toEventModel(ev events.Event) OrganizationEventModel {
	// Event producers hand in rows without an id; mint one here so a bulk
	// insert never carries duplicate zero-UUID primary keys.
	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return OrganizationEventModel{
		ID:                 id,
		OrganizationID:     ev.OrganizationID,
		OrganizationUserID: ev.OrganizationUserID,
		AuthRequestID:      ev.AuthRequestID,
		Type:               string(ev.Type),
		Date:               ev.Date,
	}
}
