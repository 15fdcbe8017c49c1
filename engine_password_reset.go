package goRefresh

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/password"
	"github.com/MrEthical07/goRefresh/principal"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// The call reports success for unknown identifiers, so it cannot be used
// to probe which accounts exist.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.Reset.Enabled {
		return ErrResetDisabled
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequest, true, "", nil, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})

	p, err := e.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	if p.Status == principal.StatusDeleted || p.Status == principal.StatusDisabled {
		return nil
	}

	tok, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	expiresAt := e.now().Add(e.config.Reset.TokenTTL)
	if err := e.store.SetResetToken(ctx, p.ID, tok, expiresAt); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	if e.mailer == nil {
		return errors.New("no mailer configured")
	}
	return e.mailer.SendPasswordReset(ctx, p.Identifier, tok)
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// A successful reset revokes the persisted refresh token and clears the
// lockout state, so stolen sessions die with the old password.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if !e.config.Reset.Enabled {
		return ErrResetDisabled
	}
	if err := internal.ValidateOpaqueToken(resetToken); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, "", ErrResetInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed_token"}
		})
		return ErrResetInvalid
	}

	p, err := e.store.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			e.metricInc(MetricResetFailure)
			e.emitAudit(ctx, auditEventResetFailure, false, "", ErrResetInvalid, func() map[string]string {
				return map[string]string{"reason": "unknown_token"}
			})
			return ErrResetInvalid
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	if !p.ResetExpiresAt.IsZero() && !p.ResetExpiresAt.After(e.now()) {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, p.ID, ErrResetInvalid, func() map[string]string {
			return map[string]string{"reason": "expired_token"}
		})
		return ErrResetInvalid
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrPasswordPolicy
		}
		return err
	}

	if err := e.store.ResetCredentials(ctx, p.ID, hash); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return ErrResetInvalid
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, auditEventResetSuccess, true, p.ID, nil, nil)
	return nil
}
