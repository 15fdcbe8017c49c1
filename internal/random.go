package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const opaqueTokenSize = 32

// NewOpaqueToken returns a base64url-encoded 32-byte random value. Used
// for the one-time verification and reset links sent over email.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidateOpaqueToken rejects values that cannot have been produced by
// [NewOpaqueToken], so malformed input never reaches the store.
func ValidateOpaqueToken(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return errors.New("invalid token encoding")
	}
	if len(raw) != opaqueTokenSize {
		return errors.New("invalid token size")
	}
	return nil
}
