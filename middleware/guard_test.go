package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goRefresh "github.com/MrEthical07/goRefresh"
	"github.com/MrEthical07/goRefresh/principal"
)

func newGuardTestEngine(t *testing.T) (*goRefresh.Engine, *goRefresh.LoginResult) {
	t.Helper()

	store := principal.NewMemoryStore()
	engine, err := goRefresh.New().
		WithConfig(guardTestConfig()).
		WithStore(store).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	reg, err := engine.Register(ctx, goRefresh.RegisterRequest{
		Identifier: "admin@example.com",
		Password:   "correct horse battery",
		Role:       goRefresh.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = reg

	result, err := engine.Login(ctx, "admin@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return engine, result
}

func guardTestConfig() goRefresh.Config {
	cfg := goRefresh.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Verification.Enabled = false
	cfg.Reset.Enabled = false
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok || res.PrincipalID == "" {
			http.Error(w, "missing auth result", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAcceptsValidToken(t *testing.T) {
	engine, session := newGuardTestEngine(t)
	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", rec.Code)
	}
}

func TestGuardRejectsMissingAndMalformedTokens(t *testing.T) {
	engine, _ := newGuardTestEngine(t)
	handler := Guard(engine)(okHandler())

	cases := []string{"", "Bearer ", "Bearer not-a-token", "Basic abc"}
	for _, auth := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("authorization %q got %d, want 401", auth, rec.Code)
		}
	}
}

func TestGuardRejectsRefreshTokenAsAccess(t *testing.T) {
	engine, session := newGuardTestEngine(t)
	handler := Guard(engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.RefreshToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token accepted on access path: %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine, admin := newGuardTestEngine(t)

	adminOnly := Guard(engine)(RequireRole(goRefresh.RoleAdmin, goRefresh.RoleSuperAdmin)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin rejected: %d", rec.Code)
	}

	// A plain user must be forbidden, not unauthorized.
	ctx := context.Background()
	if _, err := engine.Register(ctx, goRefresh.RegisterRequest{
		Identifier: "user@example.com",
		Password:   "correct horse battery",
	}); err != nil {
		t.Fatalf("register user: %v", err)
	}
	userSession, err := engine.Login(ctx, "user@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login user: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userSession.AccessToken)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user got %d, want 403", rec.Code)
	}
}
