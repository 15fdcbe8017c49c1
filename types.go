package goRefresh

import "context"

const (
	// RoleUser is an exported constant or variable used by the token engine.
	RoleUser = "USER"
	// RoleAdmin is an exported constant or variable used by the token engine.
	RoleAdmin = "ADMIN"
	// RoleSuperAdmin is an exported constant or variable used by the token engine.
	RoleSuperAdmin = "SUPER_ADMIN"
)

// TokenPair carries one access/refresh token pair minted by the engine.
// Both tokens are signed JWTs; only the refresh token is persisted server-side.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login]. It includes the minted token
// pair plus the authenticated principal's identity and role.
type LoginResult struct {
	PrincipalID  string
	Identifier   string
	Role         string
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.ValidateAccess]. It contains the
// authenticated principal's ID and role as carried in the access token.
type AuthResult struct {
	PrincipalID string
	Role        string
}

// RegisterRequest is the input for [Engine.Register]. Identifier and
// Password are required; Name is optional display metadata; Role defaults
// to [RegistrationConfig.DefaultRole] when empty.
type RegisterRequest struct {
	Identifier string
	Name       string
	Password   string
	Role       string
}

// RegisterResult is returned by [Engine.Register]. Verification is pending
// when email verification is enabled; the verification token travels only
// through the configured [Mailer].
type RegisterResult struct {
	PrincipalID         string
	Role                string
	VerificationPending bool
}

// Mailer delivers verification and reset tokens out of band. The engine
// never returns these tokens to API callers; a nil Mailer silently skips
// delivery, which is acceptable only in tests and local development.
type Mailer interface {
	SendVerification(ctx context.Context, identifier, token string) error
	SendPasswordReset(ctx context.Context, identifier, token string) error
}
