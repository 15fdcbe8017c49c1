package goRefresh

import "errors"

var (
	// ErrUnauthorized is an exported constant or variable used by the token engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the token engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is an exported constant or variable used by the token engine.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrIdentifierTaken is an exported constant or variable used by the token engine.
	ErrIdentifierTaken = errors.New("identifier already registered")
	// ErrAccountLocked is an exported constant or variable used by the token engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountUnverified is an exported constant or variable used by the token engine.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountDisabled is an exported constant or variable used by the token engine.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountDeleted is an exported constant or variable used by the token engine.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrRegistrationDisabled is an exported constant or variable used by the token engine.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrRegistrationInvalid is an exported constant or variable used by the token engine.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrPasswordPolicy is an exported constant or variable used by the token engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrVerificationDisabled is an exported constant or variable used by the token engine.
	ErrVerificationDisabled = errors.New("email verification disabled")
	// ErrVerificationInvalid is an exported constant or variable used by the token engine.
	ErrVerificationInvalid = errors.New("email verification token invalid or expired")
	// ErrResetDisabled is an exported constant or variable used by the token engine.
	ErrResetDisabled = errors.New("password reset disabled")
	// ErrResetInvalid is an exported constant or variable used by the token engine.
	ErrResetInvalid = errors.New("password reset token invalid or expired")
	// ErrTokenInvalid is an exported constant or variable used by the token engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid is an exported constant or variable used by the token engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is an exported constant or variable used by the token engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrStoreUnavailable is an exported constant or variable used by the token engine.
	ErrStoreUnavailable = errors.New("principal store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the token engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
