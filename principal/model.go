package principal

import "time"

// Status represents the lifecycle state of a principal record.
type Status uint8

const (
	// StatusActive is an exported constant or variable used by the token engine.
	StatusActive Status = iota
	// StatusPendingVerification is an exported constant or variable used by the token engine.
	StatusPendingVerification
	// StatusDisabled is an exported constant or variable used by the token engine.
	StatusDisabled
	// StatusDeleted is an exported constant or variable used by the token engine.
	StatusDeleted
)

// Principal is the full account record held by a [Store]. The refresh
// token column holds at most one value: minting overwrites it, rotation
// swaps it, revocation clears it.
type Principal struct {
	ID           string
	Identifier   string
	Name         string
	PasswordHash string
	Role         string
	Status       Status
	Verified     bool

	FailedLogins int
	LockedUntil  time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time

	VerificationToken     string
	VerificationExpiresAt time.Time

	ResetToken     string
	ResetExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account lockout window is still open at now.
func (p *Principal) Locked(now time.Time) bool {
	if p == nil {
		return false
	}
	return !p.LockedUntil.IsZero() && p.LockedUntil.After(now)
}

// RefreshExpired reports whether the persisted refresh token has passed
// its expiry at now. A principal with no persisted token is not expired,
// it is revoked.
func (p *Principal) RefreshExpired(now time.Time) bool {
	if p == nil || p.RefreshToken == "" {
		return false
	}
	return !p.RefreshExpiresAt.IsZero() && !p.RefreshExpiresAt.After(now)
}

// Clone returns a deep copy safe to hand to callers.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
