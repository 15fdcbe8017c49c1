package principal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is an exported constant or variable used by the token engine.
var ErrNotFound = errors.New("principal not found")

// ErrDuplicateIdentifier is an exported constant or variable used by the token engine.
var ErrDuplicateIdentifier = errors.New("duplicate identifier")

// ErrRefreshMismatch is returned by RotateRefreshToken when the presented
// token does not equal the persisted one. The persisted token is left
// untouched: the caller lost the rotation race or replayed a stale value,
// and the holder of the current token must keep working.
var ErrRefreshMismatch = errors.New("refresh token mismatch")

// ErrRefreshExpired is returned by RotateRefreshToken when the persisted
// token exists but its expiry has passed.
var ErrRefreshExpired = errors.New("refresh token expired")

// ErrRefreshRevoked is returned by RotateRefreshToken when no refresh
// token is persisted for the principal.
var ErrRefreshRevoked = errors.New("refresh token revoked")

// ErrUnavailable wraps backend transport failures (Redis down, SQL
// connection lost). Callers must treat it as retryable, never as an
// authentication verdict.
var ErrUnavailable = errors.New("principal store unavailable")

// Store is the persistence contract for principal records.
//
// RotateRefreshToken and RecordLoginFailure are the two operations with
// atomicity requirements: implementations must guarantee that concurrent
// rotations admit exactly one winner (compare-and-swap on the stored
// refresh token) and that failure counting never loses increments.
type Store interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Principal, error)

	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error

	// RecordLoginFailure atomically increments the failure counter. When the
	// incremented counter reaches threshold, the lockout window [now, now+lockFor)
	// is opened in the same operation. It returns the post-increment record.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (*Principal, error)

	// ResetLoginFailures zeroes the counter and closes any lockout window.
	ResetLoginFailures(ctx context.Context, id string) error

	// SaveRefreshToken overwrites the persisted refresh token unconditionally.
	// Used at login: any previous session for the principal dies here.
	SaveRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error

	// RotateRefreshToken atomically compares current against the persisted
	// value and, only on match, overwrites it with next. Exactly one of N
	// concurrent callers presenting the same current value wins; the rest
	// receive ErrRefreshMismatch and the stored token is left untouched.
	RotateRefreshToken(ctx context.Context, id, current, next string, expiresAt time.Time) (*Principal, error)

	// ClearRefreshToken removes the persisted refresh token. Idempotent:
	// clearing an already-clear record succeeds.
	ClearRefreshToken(ctx context.Context, id string) error

	SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error
	GetByVerificationToken(ctx context.Context, token string) (*Principal, error)
	MarkVerified(ctx context.Context, id string) error

	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, token string) (*Principal, error)

	// ResetCredentials replaces the password hash and, in the same operation,
	// clears the reset token and revokes the persisted refresh token.
	ResetCredentials(ctx context.Context, id, passwordHash string) error

	Ping(ctx context.Context) error
}
