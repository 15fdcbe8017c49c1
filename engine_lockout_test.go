package goRefresh

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockoutOpensAtThreshold(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())
	mustRegister(t, engine, "alice", "correct-password-123")

	for i := 0; i < 2; i++ {
		if _, err := engine.Login(context.Background(), "alice", "wrong-password-123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Third failure reaches the threshold and opens the lock window.
	if _, err := engine.Login(context.Background(), "alice", "wrong-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked at threshold, got %v", err)
	}

	// The correct password is refused while the window is open.
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestLockoutWindowExpires(t *testing.T) {
	engine, _, clock := newMemoryTestEngine(t, engineTestConfig())
	mustRegister(t, engine, "alice", "correct-password-123")

	for i := 0; i < 3; i++ {
		_, _ = engine.Login(context.Background(), "alice", "wrong-password-123")
	}
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked before window expiry, got %v", err)
	}

	clock.Advance(time.Minute + time.Second)

	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("expected login after window expiry, got %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected tokens after lockout expiry")
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())
	mustRegister(t, engine, "alice", "correct-password-123")

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(context.Background(), "alice", "wrong-password-123")
	}
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// The successful login cleared the counter, so two more failures
	// stay below the threshold of three.
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(context.Background(), "alice", "wrong-password-123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		t.Fatalf("expected login after counter reset, got %v", err)
	}
}
