package goRefresh

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goRefresh/password"
	"github.com/MrEthical07/goRefresh/principal"
	"github.com/MrEthical07/goRefresh/token"
)

// Engine defines a public type used by goRefresh APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	store        principal.Store
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	tokens       *token.Manager
	mailer       Mailer
	logger       zerolog.Logger
	now          func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	if identifier == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	p, err := e.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			// Unknown and wrong-password paths must be indistinguishable.
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "principal_not_found",
				}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if denied := e.checkAccountState(ctx, p, identifier); denied != nil {
		return nil, denied
	}

	now := e.now()
	if p.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, p.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier":   identifier,
				"locked_until": p.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(pass, p.PasswordHash)
	if err != nil || !ok {
		return nil, e.recordLoginFailure(ctx, p, identifier)
	}

	if e.config.Verification.Enabled && e.config.Verification.RequireForLogin && !p.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, ErrAccountUnverified, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "unverified",
			}
		})
		return nil, ErrAccountUnverified
	}

	access, err := e.tokens.MintAccess(p.ID, p.Role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := e.tokens.MintRefresh(p.ID, p.Role)
	if err != nil {
		return nil, err
	}

	if err := e.store.SaveRefreshToken(ctx, p.ID, refresh, refreshExp); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if p.FailedLogins > 0 {
		// Best effort: a stale counter never blocks a successful login.
		if err := e.store.ResetLoginFailures(ctx, p.ID); err != nil {
			e.logger.Warn().Err(err).Str("principal_id", p.ID).Msg("reset login failures")
		}
	}

	e.maybeUpgradeHash(ctx, p, pass)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, nil, nil)

	return &LoginResult{
		PrincipalID:  p.ID,
		Identifier:   p.Identifier,
		Role:         p.Role,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (e *Engine) checkAccountState(ctx context.Context, p *principal.Principal, identifier string) error {
	var denied error
	switch p.Status {
	case principal.StatusDeleted:
		denied = ErrInvalidCredentials
	case principal.StatusDisabled:
		denied = ErrAccountDisabled
	default:
		return nil
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, denied, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     "account_state",
		}
	})
	return denied
}

func (e *Engine) recordLoginFailure(ctx context.Context, p *principal.Principal, identifier string) error {
	updated, err := e.store.RecordLoginFailure(ctx, p.ID, e.config.Lockout.Threshold, e.config.Lockout.LockDuration)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	if updated.Locked(e.now()) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, p.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"attempts":   strconv.Itoa(updated.FailedLogins),
			}
		})
		return ErrAccountLocked
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     "bad_password",
			"attempts":   strconv.Itoa(updated.FailedLogins),
		}
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, p *principal.Principal, pass string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(p.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	rehashed, err := e.passwordHash.Hash(pass)
	if err != nil {
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, p.ID, rehashed); err != nil {
		e.logger.Warn().Err(err).Str("principal_id", p.ID).Msg("password hash upgrade")
	}
}

// Refresh describes the refresh operation and its observable behavior.
//
// Rotation is the only write path: every accepted refresh replaces the
// persisted value atomically, so a superseded token presented later fails
// with [ErrRefreshReuse] while the current pair keeps working. The reuse
// signal is surfaced through audit and metrics for operators to act on.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "parse_failed"}
		})
		return nil, ErrRefreshInvalid
	}

	next, nextExp, err := e.tokens.MintRefresh(claims.PrincipalID, claims.Role)
	if err != nil {
		return nil, err
	}

	start := e.now()
	rotated, err := e.store.RotateRefreshToken(ctx, claims.PrincipalID, refreshToken, next, nextExp)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRotateLatency, e.now().Sub(start))
	}
	if err != nil {
		switch {
		case errors.Is(err, principal.ErrRefreshMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.PrincipalID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, principal.ErrRefreshRevoked),
			errors.Is(err, principal.ErrRefreshExpired),
			errors.Is(err, principal.ErrNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.PrincipalID, ErrRefreshInvalid, func() map[string]string {
				return map[string]string{"reason": rotateFailureReason(err)}
			})
			return nil, ErrRefreshInvalid
		default:
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	if rotated.Status != principal.StatusActive && rotated.Status != principal.StatusPendingVerification {
		// The rotation won but the account is no longer usable. Drop the
		// session we just minted.
		_ = e.store.ClearRefreshToken(ctx, rotated.ID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rotated.ID, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "account_state"}
		})
		return nil, ErrRefreshInvalid
	}

	access, err := e.tokens.MintAccess(rotated.ID, rotated.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, rotated.ID, nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// This is the hot path: signature and expiry only, never a store read.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &AuthResult{PrincipalID: claims.PrincipalID, Role: claims.Role}, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Revoke(ctx context.Context, principalID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if principalID == "" {
		return ErrPrincipalNotFound
	}

	err := e.store.ClearRefreshToken(ctx, principalID)
	switch {
	case err == nil:
		// Clearing an already-clear token lands here too. Idempotent.
	case errors.Is(err, principal.ErrNotFound):
		return ErrPrincipalNotFound
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, true, principalID, nil, nil)
	return nil
}

// Logout revokes the session named by a refresh token. The token is only
// parsed to recover the principal; a stale or superseded value still logs
// the principal out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}
	return e.Revoke(ctx, claims.PrincipalID)
}

// LogoutByAccessToken describes the logoutbyaccesstoken operation and its observable behavior.
//
// LogoutByAccessToken may return an error when input validation, dependency calls, or security checks fail.
// LogoutByAccessToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return ErrTokenInvalid
	}
	return e.Revoke(ctx, claims.PrincipalID)
}

func rotateFailureReason(err error) string {
	switch {
	case errors.Is(err, principal.ErrRefreshRevoked):
		return "revoked"
	case errors.Is(err, principal.ErrRefreshExpired):
		return "expired"
	default:
		return "not_found"
	}
}

