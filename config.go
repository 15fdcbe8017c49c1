package goRefresh

import (
	"errors"
	"time"
)

// Config defines a public type used by goRefresh APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token        TokenConfig
	Lockout      LockoutConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by goRefresh APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by goRefresh APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Threshold    int
	LockDuration time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by goRefresh APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RegistrationConfig defines a public type used by goRefresh APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	Enabled     bool
	DefaultRole string
}

// VerificationConfig defines a public type used by goRefresh APIs.
//
// VerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationConfig struct {
	Enabled         bool
	TokenTTL        time.Duration
	RequireForLogin bool
}

// ResetConfig defines a public type used by goRefresh APIs.
//
// ResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ResetConfig struct {
	Enabled  bool
	TokenTTL time.Duration
}

// AuditConfig defines a public type used by goRefresh APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goRefresh APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  24 * time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "goRefresh",
			Leeway:     0,
		},
		Lockout: LockoutConfig{
			Threshold:    5,
			LockDuration: 30 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Registration: RegistrationConfig{
			Enabled:     true,
			DefaultRole: RoleUser,
		},
		Verification: VerificationConfig{
			Enabled:         false,
			TokenTTL:        24 * time.Hour,
			RequireForLogin: false,
		},
		Reset: ResetConfig{
			Enabled:  false,
			TokenTTL: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must exceed AccessTTL")
	}
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be >= 256 bits")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Registration
	if c.Registration.Enabled && c.Registration.DefaultRole == "" {
		return errors.New("Registration DefaultRole is required when registration is enabled")
	}

	// Verification
	if c.Verification.Enabled && c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if c.Verification.RequireForLogin && !c.Verification.Enabled {
		return errors.New("Verification RequireForLogin requires Verification Enabled")
	}

	// Reset
	if c.Reset.Enabled && c.Reset.TokenTTL <= 0 {
		return errors.New("Reset TokenTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
