package goRefresh

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAssignsDefaultRole(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())

	res, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Role != RoleUser {
		t.Fatalf("expected default role %s, got %s", RoleUser, res.Role)
	}
	if res.VerificationPending {
		t.Fatal("expected no pending verification when verification is disabled")
	}
}

func TestRegisterAcceptsKnownRole(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())

	res, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "admin",
		Password:   "correct-password-123",
		Role:       RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Role != RoleAdmin {
		t.Fatalf("expected role %s, got %s", RoleAdmin, res.Role)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())

	_, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
		Role:       "ROOT",
	})
	if !errors.Is(err, ErrRegistrationInvalid) {
		t.Fatalf("expected ErrRegistrationInvalid, got %v", err)
	}
}

func TestRegisterRejectsDuplicateIdentifier(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())
	mustRegister(t, engine, "alice", "correct-password-123")

	_, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "alice",
		Password:   "another-password-123",
	})
	if !errors.Is(err, ErrIdentifierTaken) {
		t.Fatalf("expected ErrIdentifierTaken, got %v", err)
	}
}

func TestRegisterEnforcesPasswordPolicy(t *testing.T) {
	engine, _, _ := newMemoryTestEngine(t, engineTestConfig())

	_, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "alice",
		Password:   "short",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterDisabled(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Registration.Enabled = false
	engine, _, _ := newMemoryTestEngine(t, cfg)

	_, err := engine.Register(context.Background(), RegisterRequest{
		Identifier: "alice",
		Password:   "correct-password-123",
	})
	if !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}
}
