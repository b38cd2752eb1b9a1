package ratelimit

import (
	"errors"
	"testing"
)

func TestLimiter_BurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("key-a"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow("key-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited after burst exhausted", err)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("key-a"); err != nil {
		t.Fatalf("key-a first request: %v", err)
	}
	if err := l.Allow("key-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("key-a should be exhausted")
	}
	// key-b has its own bucket.
	if err := l.Allow("key-b"); err != nil {
		t.Fatalf("key-b first request: %v", err)
	}
}

func TestLimiter_UnlimitedMode(t *testing.T) {
	l := NewLimiter(Config{})

	for i := 0; i < 1000; i++ {
		if err := l.Allow("any"); err != nil {
			t.Fatalf("request %d rejected in unlimited mode: %v", i+1, err)
		}
	}
}

func TestLimiter_BurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 2})

	if err := l.Allow("k"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("k"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if err := l.Allow("k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited past the default burst", err)
	}
}
