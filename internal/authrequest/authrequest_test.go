package authrequest

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAuthRequest_Spent(t *testing.T) {
	now := time.Now().UTC()
	approved := false

	fresh := &AuthRequest{ID: uuid.New(), CreationDate: now}
	if fresh.Spent() {
		t.Error("fresh request reported spent")
	}

	decided := &AuthRequest{ID: uuid.New(), CreationDate: now, Approved: &approved}
	if !decided.Spent() {
		t.Error("denied request not reported spent")
	}

	responded := &AuthRequest{ID: uuid.New(), CreationDate: now, ResponseDate: &now}
	if !responded.Spent() {
		t.Error("responded request not reported spent")
	}

	consumed := &AuthRequest{ID: uuid.New(), CreationDate: now, AuthenticationDate: &now}
	if !consumed.Spent() {
		t.Error("consumed request not reported spent")
	}
}

func TestAuthRequest_Expired(t *testing.T) {
	now := time.Now().UTC()
	req := &AuthRequest{ID: uuid.New(), CreationDate: now.Add(-10 * time.Minute)}

	if req.Expired(15*time.Minute, now) {
		t.Error("request inside the window reported expired")
	}
	if !req.Expired(5*time.Minute, now) {
		t.Error("request past the window not reported expired")
	}
}

func TestAuthRequest_DeviceLabel(t *testing.T) {
	tests := []struct {
		name       string
		deviceType DeviceType
		identifier string
		want       string
	}{
		{"with identifier", DeviceIOS, "device-abc", "iOS - device-abc"},
		{"without identifier", DeviceLinuxDesktop, "", "Linux Desktop"},
		{"unknown type with identifier", DeviceType(97), "x1", "Unknown Device Type - x1"},
		{"unknown type", DeviceType(97), "", "Unknown Device Type"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &AuthRequest{
				RequestDeviceType:       tc.deviceType,
				RequestDeviceIdentifier: tc.identifier,
			}
			if got := r.DeviceLabel(); got != tc.want {
				t.Errorf("label = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeviceType_String(t *testing.T) {
	if got := DeviceAndroid.String(); got != "Android" {
		t.Errorf("Android label = %q", got)
	}
	if got := DeviceType(-1).String(); got != UnknownDeviceLabel {
		t.Errorf("unmapped label = %q, want %q", got, UnknownDeviceLabel)
	}
}
