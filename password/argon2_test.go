package password

import (
	"errors"
	"strings"
	"testing"
)

func newTestArgon2(t *testing.T) *Argon2 {
	t.Helper()
	a, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new argon2: %v", err)
	}
	return a
}

func TestHashVerifyRoundTrip(t *testing.T) {
	a := newTestArgon2(t)

	encoded, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %q", encoded)
	}

	ok, err := a.Verify("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = a.Verify("wrong password!!", encoded)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	a := newTestArgon2(t)
	if _, err := a.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected short-password sentinel, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	a := newTestArgon2(t)
	cases := []string{
		"",
		"plainhash",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, encoded := range cases {
		if _, err := a.Verify("whatever-pass", encoded); err == nil {
			t.Fatalf("malformed hash accepted: %q", encoded)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestArgon2(t)
	encoded, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	strong, err := NewArgon2(Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new argon2: %v", err)
	}

	upgrade, err := strong.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade: %v", err)
	}
	if !upgrade {
		t.Fatal("weaker hash not flagged for upgrade")
	}

	upgrade, err = weak.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade: %v", err)
	}
	if upgrade {
		t.Fatal("matching hash flagged for upgrade")
	}
}
