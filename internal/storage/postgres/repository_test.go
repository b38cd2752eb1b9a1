package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vaultum/keygate/internal/authrequest"
	"github.com/vaultum/keygate/internal/events"
	"github.com/vaultum/keygate/internal/orgauth"
)

// The repositories are dialect-agnostic GORM code; tests run them against a
// throwaway SQLite file, the same backend the sqlite store reuses them with.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keygate.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	if err := db.AutoMigrate(&OrgModel{}, &UserModel{}, &AuthRequestModel{}, &OrganizationEventModel{}); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func storedPending(t *testing.T, repo *AuthRequestRepository, orgID uuid.UUID, age time.Duration) *authrequest.AuthRequest {
	t.Helper()
	req := &authrequest.AuthRequest{
		ID:                      uuid.New(),
		UserID:                  uuid.New(),
		OrganizationID:          &orgID,
		OrganizationUserID:      uuid.New(),
		RequestDeviceType:       authrequest.DeviceLinuxDesktop,
		RequestDeviceIdentifier: "workstation",
		RequestIPAddress:        "198.51.100.4",
		CreationDate:            time.Now().UTC().Add(-age),
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("creating auth request: %v", err)
	}
	return req
}

func decided(req *authrequest.AuthRequest, approved bool, key string) *authrequest.AuthRequest {
	out := *req
	responded := time.Now().UTC()
	out.Approved = &approved
	out.Key = key
	out.ResponseDate = &responded
	return &out
}

func TestEventRepository_AppendMintsIDs(t *testing.T) {
	db := testDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	// Producers hand in rows without ids; a batch of two must not collide on
	// the primary key.
	batch := []events.Event{
		{
			OrganizationID:     orgID,
			OrganizationUserID: uuid.New(),
			AuthRequestID:      uuid.New(),
			Type:               events.TypeOrganizationUserApprovedAuthRequest,
			Date:               time.Now().UTC(),
		},
		{
			OrganizationID:     orgID,
			OrganizationUserID: uuid.New(),
			AuthRequestID:      uuid.New(),
			Type:               events.TypeOrganizationUserRejectedAuthRequest,
			Date:               time.Now().UTC(),
		},
	}

	if err := repo.Append(ctx, batch); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var rows []OrganizationEventModel
	if err := db.Order("date ASC").Find(&rows).Error; err != nil {
		t.Fatalf("reading back events: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored %d events, want 2", len(rows))
	}
	if rows[0].ID == uuid.Nil || rows[1].ID == uuid.Nil {
		t.Error("stored event carries the zero UUID as primary key")
	}
	if rows[0].ID == rows[1].ID {
		t.Error("stored events share a primary key")
	}
}

func TestEventRepository_KeepsCallerAssignedID(t *testing.T) {
	db := testDB(t)
	repo := NewEventRepository(db)

	want := uuid.New()
	err := repo.Append(context.Background(), []events.Event{{
		ID:             want,
		OrganizationID: uuid.New(),
		Type:           events.TypeOrganizationUserApprovedAuthRequest,
		Date:           time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	var row OrganizationEventModel
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("reading back event: %v", err)
	}
	if row.ID != want {
		t.Errorf("stored id = %s, want %s", row.ID, want)
	}
}

func TestAuthRequestRepository_UpdateManyRacingDecisionLoses(t *testing.T) {
	db := testDB(t)
	repo := NewAuthRequestRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	req := storedPending(t, repo, orgID, time.Minute)

	first := decided(req, true, "2.first-key")
	if err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{first}); err != nil {
		t.Fatalf("first decision: %v", err)
	}

	// A second decision arrives for the same row. The conditional write must
	// match zero rows and fail instead of overwriting.
	second := decided(req, false, "")
	err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{second})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second decision err = %v, want ErrNotFound", err)
	}

	stored, err := repo.Get(ctx, orgID, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsApproved() || stored.Key != "2.first-key" {
		t.Errorf("stored decision = approved %v key %q, want the first decision intact", stored.IsApproved(), stored.Key)
	}
	if stored.ResponseDate == nil {
		t.Error("stored decision lost its response date")
	}
}

func TestAuthRequestRepository_UpdateManyRollsBackOnPartialConflict(t *testing.T) {
	db := testDB(t)
	repo := NewAuthRequestRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	fresh := storedPending(t, repo, orgID, time.Minute)
	taken := storedPending(t, repo, orgID, time.Minute)
	if err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{decided(taken, false, "")}); err != nil {
		t.Fatalf("pre-deciding: %v", err)
	}

	// One writable row plus one already-decided row: the transaction fails
	// as a whole and the writable row stays pending.
	err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{
		decided(fresh, true, "2.key"),
		decided(taken, true, "2.key"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	stored, err := repo.Get(ctx, orgID, fresh.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Spent() {
		t.Error("row decided by a rolled-back transaction")
	}
}

func TestAuthRequestRepository_GetManyPendingByIDsScoping(t *testing.T) {
	db := testDB(t)
	repo := NewAuthRequestRepository(db)
	ctx := context.Background()
	orgID := uuid.New()
	otherOrg := uuid.New()

	pending := storedPending(t, repo, orgID, time.Minute)
	alreadyDecided := storedPending(t, repo, orgID, time.Minute)
	foreign := storedPending(t, repo, otherOrg, time.Minute)
	if err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{decided(alreadyDecided, false, "")}); err != nil {
		t.Fatalf("pre-deciding: %v", err)
	}

	got, err := repo.GetManyPendingByIDs(ctx, orgID, []uuid.UUID{pending.ID, alreadyDecided.ID, foreign.ID, uuid.New()})
	if err != nil {
		t.Fatalf("GetManyPendingByIDs: %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Fatalf("got %d requests, want only the pending one in this org", len(got))
	}

	// Empty id set short-circuits without touching the database.
	got, err = repo.GetManyPendingByIDs(ctx, orgID, nil)
	if err != nil {
		t.Fatalf("GetManyPendingByIDs(nil): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d requests for an empty id set, want 0", len(got))
	}
}

func TestAuthRequestRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	repo := NewAuthRequestRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	stale := storedPending(t, repo, orgID, 2*time.Hour)
	fresh := storedPending(t, repo, orgID, time.Minute)
	decidedOld := storedPending(t, repo, orgID, 2*time.Hour)
	if err := repo.UpdateMany(ctx, []*authrequest.AuthRequest{decided(decidedOld, true, "2.key")}); err != nil {
		t.Fatalf("pre-deciding: %v", err)
	}

	purged, err := repo.DeleteExpired(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1 (undecided stale row only)", purged)
	}

	if _, err := repo.Get(ctx, orgID, stale.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale pending row survived the purge: %v", err)
	}
	if _, err := repo.Get(ctx, orgID, fresh.ID); err != nil {
		t.Errorf("fresh pending row purged: %v", err)
	}
	// Decided rows are the audit trail; age alone never removes them.
	if _, err := repo.Get(ctx, orgID, decidedOld.ID); err != nil {
		t.Errorf("decided row purged: %v", err)
	}
}

func TestUserRepository_UpsertAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	orgID := uuid.New()

	id := uuid.New()
	if err := repo.Upsert(ctx, orgID, &orgauth.User{ID: id, Email: "old@example.com", Name: "Old"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, orgID, &orgauth.User{ID: id, Email: "new@example.com", Name: "New"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "new@example.com" || got.Name != "New" {
		t.Errorf("got %+v, want the updated row", got)
	}
}

func TestOrgRepository_EnsureOrgIsIdempotent(t *testing.T) {
	db := testDB(t)
	repo := NewOrgRepository(db)
	ctx := context.Background()

	first, err := repo.EnsureOrg(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("first EnsureOrg: %v", err)
	}
	second, err := repo.EnsureOrg(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("second EnsureOrg: %v", err)
	}
	if first != second {
		t.Errorf("EnsureOrg minted a new org: %s vs %s", first, second)
	}
}
