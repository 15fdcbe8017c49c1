package httpapi

import (
	"errors"
	"net/http"

	goRefresh "github.com/MrEthical07/goRefresh"
	"github.com/MrEthical07/goRefresh/middleware"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	PrincipalID  string `json:"principal_id"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		PrincipalID:  result.PrincipalID,
		Role:         result.Role,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// handleLogout runs behind the access-token guard: the principal comes
// from the validated token, never from the request body. Revoking an
// already-empty session is still a 204.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorBody{Message: "unauthorized", Kind: KindUnauthorized})
		return
	}

	if err := s.engine.Revoke(r.Context(), res.PrincipalID); err != nil && !errors.Is(err, goRefresh.ErrPrincipalNotFound) {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Password   string `json:"password"`
}

type registerResponse struct {
	PrincipalID         string `json:"principal_id"`
	Role                string `json:"role"`
	VerificationPending bool   `json:"verification_pending"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// The public surface never accepts a role; privileged accounts are
	// created out of band.
	result, err := s.engine.Register(r.Context(), goRefresh.RegisterRequest{
		Identifier: req.Identifier,
		Name:       req.Name,
		Password:   req.Password,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		PrincipalID:         result.PrincipalID,
		Role:                result.Role,
		VerificationPending: result.VerificationPending,
	})
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequestBody struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Identifier); err != nil {
		s.writeEngineError(w, err)
		return
	}
	// Always 202: the response must not reveal whether the identifier exists.
	w.WriteHeader(http.StatusAccepted)
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	PrincipalID string `json:"principal_id"`
	Role        string `json:"role"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorBody{Message: "unauthorized", Kind: KindUnauthorized})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{PrincipalID: res.PrincipalID, Role: res.Role})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrorBody{Message: "backend unavailable", Kind: KindUnavailable})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
