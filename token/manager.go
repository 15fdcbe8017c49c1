// Package token mints and validates the signed HS256 tokens exchanged by
// the engine and its clients. Access and refresh tokens share one codec
// but carry a kind claim, so a refresh token can never pass an access
// check and vice versa.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// KindAccess is an exported constant or variable used by the authentication engine.
	KindAccess = "access"
	// KindRefresh is an exported constant or variable used by the authentication engine.
	KindRefresh = "refresh"
)

// ErrKindMismatch is an exported constant or variable used by the authentication engine.
var ErrKindMismatch = errors.New("token kind mismatch")

// Config defines a public type used by goRefresh APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Leeway     time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager defines a public type used by goRefresh APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Claims defines a public type used by goRefresh APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	PrincipalID string `json:"pid"`
	Role        string `json:"role,omitempty"`
	Kind        string `json:"kind"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// MintAccess describes the mintaccess operation and its observable behavior.
//
// MintAccess may return an error when input validation, dependency calls, or security checks fail.
// MintAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) MintAccess(principalID, role string) (string, error) {
	return m.mint(principalID, role, KindAccess, m.config.AccessTTL)
}

// MintRefresh describes the mintrefresh operation and its observable behavior.
//
// MintRefresh may return an error when input validation, dependency calls, or security checks fail.
// MintRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) MintRefresh(principalID, role string) (string, time.Time, error) {
	expiresAt := m.config.Now().Add(m.config.RefreshTTL)
	signed, err := m.mint(principalID, role, KindRefresh, m.config.RefreshTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *Manager) mint(principalID, role, kind string, ttl time.Duration) (string, error) {
	if principalID == "" {
		return "", errors.New("empty principal id")
	}
	now := m.config.Now()
	claims := Claims{
		PrincipalID: principalID,
		Role:        role,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// Timestamps are second-granular, so two mints inside the
			// same second would otherwise sign identical bytes. The jti
			// keeps every token distinct; rotation depends on that.
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// ParseAccess describes the parseaccess operation and its observable behavior.
//
// ParseAccess may return an error when input validation, dependency calls, or security checks fail.
// ParseAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindAccess)
}

// ParseRefresh describes the parserefresh operation and its observable behavior.
//
// ParseRefresh may return an error when input validation, dependency calls, or security checks fail.
// ParseRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindRefresh)
}

func (m *Manager) parse(tokenStr, kind string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != kind {
		return nil, ErrKindMismatch
	}
	if claims.PrincipalID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// PeekExpiry reads the exp claim without verifying the signature. Clients
// use it to decide whether a refresh is needed before spending a request;
// it must never be used to grant access.
func PeekExpiry(tokenStr string) (time.Time, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether a token read by [PeekExpiry] should be treated
// as stale at the given instant. The margin widens the check so a token
// about to expire mid-flight counts as expired now.
func Expired(expiresAt, now time.Time, margin time.Duration) bool {
	return !expiresAt.After(now.Add(margin))
}
