package goRefresh

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/principal"
)

// RequestEmailVerification describes the requestemailverification operation and its observable behavior.
//
// RequestEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// RequestEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestEmailVerification(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.Verification.Enabled {
		return ErrVerificationDisabled
	}

	p, err := e.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			// Do not leak which identifiers exist.
			return nil
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	if p.Verified || p.Status == principal.StatusDeleted || p.Status == principal.StatusDisabled {
		return nil
	}

	if err := e.issueVerificationToken(ctx, p); err != nil {
		e.metricInc(MetricVerifyFailure)
		return err
	}
	return nil
}

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// VerifyEmail may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmail(ctx context.Context, verificationToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.Verification.Enabled {
		return ErrVerificationDisabled
	}
	if err := internal.ValidateOpaqueToken(verificationToken); err != nil {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, "", ErrVerificationInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed_token"}
		})
		return ErrVerificationInvalid
	}

	p, err := e.store.GetByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			e.metricInc(MetricVerifyFailure)
			e.emitAudit(ctx, auditEventVerifyFailure, false, "", ErrVerificationInvalid, func() map[string]string {
				return map[string]string{"reason": "unknown_token"}
			})
			return ErrVerificationInvalid
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	if !p.VerificationExpiresAt.IsZero() && !p.VerificationExpiresAt.After(e.now()) {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, p.ID, ErrVerificationInvalid, func() map[string]string {
			return map[string]string{"reason": "expired_token"}
		})
		return ErrVerificationInvalid
	}

	if err := e.store.MarkVerified(ctx, p.ID); err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return ErrVerificationInvalid
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventVerifySuccess, true, p.ID, nil, nil)
	return nil
}
