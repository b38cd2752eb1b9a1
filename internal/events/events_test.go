package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeEventStore struct {
	appended [][]Event
	err      error
}

func (f *fakeEventStore) Append(_ context.Context, evs []Event) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, evs)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreService_AppendsBatchOnce(t *testing.T) {
	store := &fakeEventStore{}
	svc := NewStoreService(store, testLogger())

	evs := []Event{
		{
			OrganizationID:     uuid.New(),
			OrganizationUserID: uuid.New(),
			AuthRequestID:      uuid.New(),
			Type:               TypeOrganizationUserApprovedAuthRequest,
			Date:               time.Now().UTC(),
		},
		{
			OrganizationID:     uuid.New(),
			OrganizationUserID: uuid.New(),
			AuthRequestID:      uuid.New(),
			Type:               TypeOrganizationUserRejectedAuthRequest,
			Date:               time.Now().UTC(),
		},
	}

	if err := svc.LogOrganizationUserEvents(context.Background(), evs); err != nil {
		t.Fatalf("LogOrganizationUserEvents: %v", err)
	}
	if len(store.appended) != 1 {
		t.Fatalf("append called %d times, want 1", len(store.appended))
	}
	if len(store.appended[0]) != 2 {
		t.Errorf("appended %d events, want 2", len(store.appended[0]))
	}
}

func TestStoreService_EmptyBatchIsNoOp(t *testing.T) {
	store := &fakeEventStore{}
	svc := NewStoreService(store, testLogger())

	if err := svc.LogOrganizationUserEvents(context.Background(), nil); err != nil {
		t.Fatalf("LogOrganizationUserEvents: %v", err)
	}
	if len(store.appended) != 0 {
		t.Error("append invoked for an empty batch")
	}
}

func TestStoreService_AppendFailurePropagates(t *testing.T) {
	wantErr := errors.New("disk full")
	svc := NewStoreService(&fakeEventStore{err: wantErr}, testLogger())

	err := svc.LogOrganizationUserEvents(context.Background(), []Event{{Type: TypeOrganizationUserApprovedAuthRequest}})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the store failure", err)
	}
}

func TestLogService_NeverFails(t *testing.T) {
	svc := NewLogService(testLogger())

	err := svc.LogOrganizationUserEvents(context.Background(), []Event{
		{Type: TypeOrganizationUserRejectedAuthRequest},
	})
	if err != nil {
		t.Fatalf("LogOrganizationUserEvents: %v", err)
	}
}
