package goRefresh

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLocked          = "login_locked"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRevoke               = "revoke"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRegisterDuplicate    = "register_duplicate"
	auditEventVerifySuccess        = "verify_success"
	auditEventVerifyFailure        = "verify_failure"
	auditEventResetRequest         = "reset_request"
	auditEventResetSuccess         = "reset_success"
	auditEventResetFailure         = "reset_failure"
)

// AuditErrorCode defines a public type used by goRefresh APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountDeleted     AuditErrorCode = "account_deleted"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrNotFound           AuditErrorCode = "principal_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountDeleted):
		return auditErrAccountDeleted
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrVerificationInvalid),
		errors.Is(err, ErrResetInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrIdentifierTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrRegistrationInvalid):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
