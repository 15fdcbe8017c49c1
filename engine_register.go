package goRefresh

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRefresh/internal"
	"github.com/MrEthical07/goRefresh/password"
	"github.com/MrEthical07/goRefresh/principal"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Registration.Enabled {
		return nil, ErrRegistrationDisabled
	}
	if req.Identifier == "" {
		return nil, ErrRegistrationInvalid
	}

	role := req.Role
	if role == "" {
		role = e.config.Registration.DefaultRole
	}
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
	default:
		return nil, ErrRegistrationInvalid
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	pendingVerification := e.config.Verification.Enabled
	status := principal.StatusActive
	if pendingVerification {
		status = principal.StatusPendingVerification
	}

	p := &principal.Principal{
		ID:           uuid.NewString(),
		Identifier:   req.Identifier,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		Verified:     !pendingVerification,
	}

	if err := e.store.Create(ctx, p); err != nil {
		if errors.Is(err, principal.ErrDuplicateIdentifier) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrIdentifierTaken, func() map[string]string {
				return map[string]string{"identifier": req.Identifier}
			})
			return nil, ErrIdentifierTaken
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if pendingVerification {
		if err := e.issueVerificationToken(ctx, p); err != nil {
			// The account exists; verification can be retried later.
			e.logger.Warn().Err(err).Str("principal_id", p.ID).Msg("issue verification token")
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, p.ID, nil, func() map[string]string {
		return map[string]string{"role": role}
	})

	return &RegisterResult{
		PrincipalID:         p.ID,
		Role:                role,
		VerificationPending: pendingVerification,
	}, nil
}

func (e *Engine) issueVerificationToken(ctx context.Context, p *principal.Principal) error {
	tok, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	expiresAt := e.now().Add(e.config.Verification.TokenTTL)
	if err := e.store.SetVerificationToken(ctx, p.ID, tok, expiresAt); err != nil {
		return err
	}
	if e.mailer == nil {
		return errors.New("no mailer configured")
	}
	return e.mailer.SendVerification(ctx, p.Identifier, tok)
}
