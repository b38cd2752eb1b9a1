package authrequest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func pendingRequest(orgID uuid.UUID, age time.Duration) *AuthRequest {
	return &AuthRequest{
		ID:                      uuid.New(),
		UserID:                  uuid.New(),
		OrganizationID:          &orgID,
		OrganizationUserID:      uuid.New(),
		RequestDeviceType:       DeviceIOS,
		RequestDeviceIdentifier: "device-abc",
		RequestIPAddress:        "192.0.2.10",
		CreationDate:            time.Now().UTC().Add(-age),
	}
}

func testConfig(orgID uuid.UUID) Config {
	return Config{OrganizationID: orgID, Expiration: 15 * time.Minute}
}

func TestProcessor_Approve(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, 5*time.Minute)
	upd := &Update{ID: req.ID, Approved: true, Key: "abc"}
	now := time.Now().UTC()

	processed, err := NewProcessor(req, upd, testConfig(orgID)).Process(now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if !processed.IsApproved() {
		t.Error("expected approved result")
	}
	if processed.Key != "abc" {
		t.Errorf("key = %q, want abc", processed.Key)
	}
	if processed.ResponseDate == nil || !processed.ResponseDate.Equal(now) {
		t.Errorf("response date = %v, want %v", processed.ResponseDate, now)
	}

	// The pending value handed in must be untouched.
	if req.Approved != nil || req.ResponseDate != nil || req.Key != "" {
		t.Error("original pending request was mutated")
	}
}

func TestProcessor_Deny(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, 5*time.Minute)
	upd := &Update{ID: req.ID, Approved: false}
	now := time.Now().UTC()

	processed, err := NewProcessor(req, upd, testConfig(orgID)).Process(now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if processed.Approved == nil || *processed.Approved {
		t.Error("expected denied result")
	}
	if processed.Key != "" {
		t.Errorf("denial must not carry a key, got %q", processed.Key)
	}
	if processed.ResponseDate == nil {
		t.Error("response date not set")
	}
}

// A denial whose update carries a key must still leave the key empty.
func TestProcessor_DenyIgnoresKey(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, time.Minute)
	upd := &Update{ID: req.ID, Approved: false, Key: "should-not-land"}

	processed, err := NewProcessor(req, upd, testConfig(orgID)).Process(time.Now().UTC())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Key != "" {
		t.Errorf("key = %q, want empty", processed.Key)
	}
}

func TestProcessor_Expired(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, 20*time.Minute) // Past the 15m window.
	upd := &Update{ID: req.ID, Approved: true, Key: "abc"}

	_, err := NewProcessor(req, upd, testConfig(orgID)).Process(time.Now().UTC())
	if !errors.Is(err, ErrCannotBeProcessed) {
		t.Fatalf("err = %v, want ErrCannotBeProcessed", err)
	}
	if req.Approved != nil || req.ResponseDate != nil {
		t.Error("expired request was mutated")
	}
}

func TestProcessor_MissingKey(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, time.Minute)
	upd := &Update{ID: req.ID, Approved: true, Key: ""}

	_, err := NewProcessor(req, upd, testConfig(orgID)).Process(time.Now().UTC())
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
	if req.Approved != nil || req.ResponseDate != nil {
		t.Error("request mutated despite missing key")
	}
}

func TestProcessor_GuardFailures(t *testing.T) {
	orgID := uuid.New()
	otherOrg := uuid.New()
	spentDate := time.Now().UTC().Add(-time.Minute)
	approved := true

	tests := []struct {
		name string
		req  func() *AuthRequest
		upd  func(id uuid.UUID) *Update
		cfg  func() Config
	}{
		{
			name: "id mismatch",
			req:  func() *AuthRequest { return pendingRequest(orgID, time.Minute) },
			upd:  func(uuid.UUID) *Update { return &Update{ID: uuid.New(), Approved: true, Key: "k"} },
			cfg:  func() Config { return testConfig(orgID) },
		},
		{
			name: "organization scope mismatch",
			req:  func() *AuthRequest { return pendingRequest(orgID, time.Minute) },
			upd:  func(id uuid.UUID) *Update { return &Update{ID: id, Approved: true, Key: "k"} },
			cfg:  func() Config { return testConfig(otherOrg) },
		},
		{
			name: "no organization on request",
			req: func() *AuthRequest {
				r := pendingRequest(orgID, time.Minute)
				r.OrganizationID = nil
				return r
			},
			upd: func(id uuid.UUID) *Update { return &Update{ID: id, Approved: true, Key: "k"} },
			cfg: func() Config { return testConfig(orgID) },
		},
		{
			name: "already approved",
			req: func() *AuthRequest {
				r := pendingRequest(orgID, time.Minute)
				r.Approved = &approved
				return r
			},
			upd: func(id uuid.UUID) *Update { return &Update{ID: id, Approved: true, Key: "k"} },
			cfg: func() Config { return testConfig(orgID) },
		},
		{
			name: "already responded",
			req: func() *AuthRequest {
				r := pendingRequest(orgID, time.Minute)
				r.ResponseDate = &spentDate
				return r
			},
			upd: func(id uuid.UUID) *Update { return &Update{ID: id, Approved: true, Key: "k"} },
			cfg: func() Config { return testConfig(orgID) },
		},
		{
			name: "already consumed",
			req: func() *AuthRequest {
				r := pendingRequest(orgID, time.Minute)
				r.AuthenticationDate = &spentDate
				return r
			},
			upd: func(id uuid.UUID) *Update { return &Update{ID: id, Approved: true, Key: "k"} },
			cfg: func() Config { return testConfig(orgID) },
		},
		{
			name: "missing update",
			req:  func() *AuthRequest { return pendingRequest(orgID, time.Minute) },
			upd:  func(uuid.UUID) *Update { return nil },
			cfg:  func() Config { return testConfig(orgID) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req()
			_, err := NewProcessor(req, tc.upd(req.ID), tc.cfg()).Process(time.Now().UTC())
			if !errors.Is(err, ErrCannotBeProcessed) {
				t.Fatalf("err = %v, want ErrCannotBeProcessed", err)
			}
			var perr *ProcessingError
			if !errors.As(err, &perr) {
				t.Fatal("error is not a *ProcessingError")
			}
			if perr.RequestID != req.ID {
				t.Errorf("error request id = %s, want %s", perr.RequestID, req.ID)
			}
		})
	}
}

// A second Process over an already-decided value must fail and leave the
// first decision byte-identical.
func TestProcessor_WriteOnce(t *testing.T) {
	orgID := uuid.New()
	req := pendingRequest(orgID, time.Minute)
	upd := &Update{ID: req.ID, Approved: true, Key: "abc"}
	cfg := testConfig(orgID)
	now := time.Now().UTC()

	first, err := NewProcessor(req, upd, cfg).Process(now)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}

	firstCopy := *first
	_, err = NewProcessor(first, &Update{ID: first.ID, Approved: false}, cfg).Process(now.Add(time.Second))
	if !errors.Is(err, ErrCannotBeProcessed) {
		t.Fatalf("second process err = %v, want ErrCannotBeProcessed", err)
	}

	if *first.Approved != *firstCopy.Approved ||
		!first.ResponseDate.Equal(*firstCopy.ResponseDate) ||
		first.Key != firstCopy.Key {
		t.Error("second process changed the decided value")
	}
}

func TestSendPushNotification_ApprovalOnly(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	cfg := testConfig(orgID)
	now := time.Now().UTC()

	approvedReq := pendingRequest(orgID, time.Minute)
	approved, err := NewProcessor(approvedReq, &Update{ID: approvedReq.ID, Approved: true, Key: "k"}, cfg).Process(now)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	deniedReq := pendingRequest(orgID, time.Minute)
	denied, err := NewProcessor(deniedReq, &Update{ID: deniedReq.ID, Approved: false}, cfg).Process(now)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}

	calls := 0
	push := func(_ context.Context, _ *AuthRequest) error {
		calls++
		return nil
	}

	if err := SendPushNotification(ctx, approved, push); err != nil {
		t.Fatalf("push approved: %v", err)
	}
	if err := SendPushNotification(ctx, denied, push); err != nil {
		t.Fatalf("push denied: %v", err)
	}
	if err := SendPushNotification(ctx, nil, push); err != nil {
		t.Fatalf("push nil: %v", err)
	}
	if err := SendPushNotification(ctx, approved, nil); err != nil {
		t.Fatalf("push nil callback: %v", err)
	}

	if calls != 1 {
		t.Errorf("push called %d times, want 1 (approved only)", calls)
	}
}

func TestSendNewDeviceEmail_Label(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	cfg := testConfig(orgID)

	req := pendingRequest(orgID, time.Minute)
	req.RequestDeviceType = DeviceIOS
	req.RequestDeviceIdentifier = "device-abc"

	processed, err := NewProcessor(req, &Update{ID: req.ID, Approved: true, Key: "k"}, cfg).Process(time.Now().UTC())
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	var gotLabel string
	send := func(_ context.Context, _ *AuthRequest, label string) error {
		gotLabel = label
		return nil
	}
	if err := SendNewDeviceEmail(ctx, processed, send); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotLabel != "iOS - device-abc" {
		t.Errorf("label = %q, want %q", gotLabel, "iOS - device-abc")
	}

	// Denied result never emails.
	deniedReq := pendingRequest(orgID, time.Minute)
	denied, _ := NewProcessor(deniedReq, &Update{ID: deniedReq.ID, Approved: false}, cfg).Process(time.Now().UTC())
	gotLabel = ""
	if err := SendNewDeviceEmail(ctx, denied, send); err != nil {
		t.Fatalf("send denied: %v", err)
	}
	if gotLabel != "" {
		t.Error("email sent for a denial")
	}
}
