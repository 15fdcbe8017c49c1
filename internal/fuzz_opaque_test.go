package internal

import (
	"testing"
)

func TestOpaqueTokenRoundtrip(t *testing.T) {
	tok, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken failed: %v", err)
	}
	if err := ValidateOpaqueToken(tok); err != nil {
		t.Fatalf("expected generated token to validate, got %v", err)
	}

	other, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken failed: %v", err)
	}
	if tok == other {
		t.Fatal("expected distinct tokens")
	}
}

// FuzzValidateOpaqueToken exercises validation with arbitrary strings.
// Goal: no panics; invalid inputs should return errors cleanly.
func FuzzValidateOpaqueToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	f.Add("dG9vLXNob3J0")

	if tok, err := NewOpaqueToken(); err == nil {
		f.Add(tok)
	}

	f.Fuzz(func(t *testing.T, input string) {
		// Must not panic. Errors are fine for invalid inputs.
		if err := ValidateOpaqueToken(input); err != nil {
			return
		}
		// Accepted values must decode to exactly the generator's size,
		// which the base64url alphabet guarantees here.
		if len(input) == 0 {
			t.Fatal("validated an empty token")
		}
	})
}
