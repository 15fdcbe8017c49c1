// Package httpapi exposes the engine over HTTP. Handlers translate the
// engine's sentinel errors into a stable wire shape, so clients switch on
// the kind field instead of parsing messages.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	goRefresh "github.com/MrEthical07/goRefresh"
	"github.com/MrEthical07/goRefresh/middleware"
)

// ErrorBody is the wire shape of every non-2xx response.
type ErrorBody struct {
	Message string            `json:"message"`
	Kind    string            `json:"kind"`
	Details map[string]string `json:"details,omitempty"`
}

const (
	// KindValidation is an exported constant or variable used by the authentication engine.
	KindValidation = "validation"
	// KindCredentials is an exported constant or variable used by the authentication engine.
	KindCredentials = "credentials"
	// KindLocked is an exported constant or variable used by the authentication engine.
	KindLocked = "locked"
	// KindUnauthorized is an exported constant or variable used by the authentication engine.
	KindUnauthorized = "unauthorized"
	// KindConflict is an exported constant or variable used by the authentication engine.
	KindConflict = "conflict"
	// KindUnavailable is an exported constant or variable used by the authentication engine.
	KindUnavailable = "unavailable"
	// KindInternal is an exported constant or variable used by the authentication engine.
	KindInternal = "internal"
)

// Server defines a public type used by goRefresh APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	engine *goRefresh.Engine
	logger zerolog.Logger
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *goRefresh.Engine, logger zerolog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine required")
	}
	return &Server{engine: engine, logger: logger}, nil
}

// Handler returns the routed HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("POST /auth/logout", middleware.Guard(s.engine)(http.HandlerFunc(s.handleLogout)))
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/password-reset/request", s.handleResetRequest)
	mux.HandleFunc("POST /auth/password-reset/confirm", s.handleResetConfirm)
	mux.Handle("GET /auth/me", middleware.Guard(s.engine)(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(
			goRefresh.WithClientIP(
				goRefresh.WithUserAgent(r.Context(), r.UserAgent()),
				clientIP(r),
			),
		))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{
			Message: "malformed request body",
			Kind:    KindValidation,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, body)
}

// writeEngineError maps the engine's sentinel errors onto the wire shape.
// Unknown errors collapse into a 500 so internals never leak.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goRefresh.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrorBody{Message: "invalid credentials", Kind: KindCredentials})
	case errors.Is(err, goRefresh.ErrAccountLocked):
		writeError(w, http.StatusLocked, ErrorBody{Message: "account temporarily locked", Kind: KindLocked})
	case errors.Is(err, goRefresh.ErrAccountUnverified):
		writeError(w, http.StatusForbidden, ErrorBody{Message: "account not verified", Kind: KindCredentials, Details: map[string]string{"reason": "unverified"}})
	case errors.Is(err, goRefresh.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, ErrorBody{Message: "account disabled", Kind: KindCredentials, Details: map[string]string{"reason": "disabled"}})
	case errors.Is(err, goRefresh.ErrRefreshReuse),
		errors.Is(err, goRefresh.ErrRefreshInvalid),
		errors.Is(err, goRefresh.ErrTokenInvalid),
		errors.Is(err, goRefresh.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, ErrorBody{Message: "unauthorized", Kind: KindUnauthorized})
	case errors.Is(err, goRefresh.ErrIdentifierTaken):
		writeError(w, http.StatusConflict, ErrorBody{Message: "identifier already registered", Kind: KindConflict})
	case errors.Is(err, goRefresh.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, ErrorBody{Message: "password does not meet policy", Kind: KindValidation, Details: map[string]string{"field": "password"}})
	case errors.Is(err, goRefresh.ErrRegistrationInvalid):
		writeError(w, http.StatusBadRequest, ErrorBody{Message: "invalid registration request", Kind: KindValidation})
	case errors.Is(err, goRefresh.ErrRegistrationDisabled),
		errors.Is(err, goRefresh.ErrVerificationDisabled),
		errors.Is(err, goRefresh.ErrResetDisabled):
		writeError(w, http.StatusNotFound, ErrorBody{Message: "not found", Kind: KindValidation})
	case errors.Is(err, goRefresh.ErrVerificationInvalid):
		writeError(w, http.StatusBadRequest, ErrorBody{Message: "invalid or expired verification token", Kind: KindValidation})
	case errors.Is(err, goRefresh.ErrResetInvalid):
		writeError(w, http.StatusBadRequest, ErrorBody{Message: "invalid or expired reset token", Kind: KindValidation})
	case errors.Is(err, goRefresh.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrorBody{Message: "backend unavailable", Kind: KindUnavailable})
	default:
		s.logger.Error().Err(err).Msg("unhandled engine error")
		writeError(w, http.StatusInternalServerError, ErrorBody{Message: "internal error", Kind: KindInternal})
	}
}
