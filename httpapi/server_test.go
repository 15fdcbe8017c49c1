package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goRefresh "github.com/MrEthical07/goRefresh"
	"github.com/MrEthical07/goRefresh/guardian"
	"github.com/MrEthical07/goRefresh/principal"
)

func newTestServer(t *testing.T) (*httptest.Server, *goRefresh.Engine) {
	t.Helper()

	cfg := goRefresh.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Lockout.Threshold = 3
	cfg.Lockout.LockDuration = time.Minute

	engine, err := goRefresh.New().
		WithConfig(cfg).
		WithStore(principal.NewMemoryStore()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	api, err := NewServer(engine, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, engine
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func register(t *testing.T, srv *httptest.Server, identifier string) {
	t.Helper()
	resp := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"identifier": identifier,
		"password":   "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func login(t *testing.T, srv *httptest.Server, identifier string) loginResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
		"identifier": identifier,
		"password":   "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[loginResponse](t, resp)
}

func TestLoginAndErrorShape(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "alice@example.com")

	session := login(t, srv, "alice@example.com")
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, goRefresh.RoleUser, session.Role)

	// Wrong password and unknown identifier produce the same body.
	for _, identifier := range []string{"alice@example.com", "nobody@example.com"} {
		resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
			"identifier": identifier,
			"password":   "wrong password",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody[ErrorBody](t, resp)
		assert.Equal(t, KindCredentials, body.Kind)
		assert.Equal(t, "invalid credentials", body.Message)
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "bob@example.com")
	session := login(t, srv, "bob@example.com")

	resp := postJSON(t, srv.URL+"/auth/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodeBody[refreshResponse](t, resp)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// The superseded token is now a replay.
	resp = postJSON(t, srv.URL+"/auth/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody[ErrorBody](t, resp)
	assert.Equal(t, KindUnauthorized, body.Kind)

	// The rotated pair is untouched by the failed replay.
	resp = postJSON(t, srv.URL+"/auth/refresh", map[string]string{
		"refresh_token": rotated.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// postAuthed is postJSON with a bearer token for guarded routes.
func postAuthed(t *testing.T, url, accessToken string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogoutIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "carol@example.com")
	session := login(t, srv, "carol@example.com")

	for i := 0; i < 2; i++ {
		resp := postAuthed(t, srv.URL+"/auth/logout", session.AccessToken, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode, "logout attempt %d", i+1)
		resp.Body.Close()
	}

	resp := postJSON(t, srv.URL+"/auth/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutRequiresAccessToken(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "carla@example.com")
	session := login(t, srv, "carla@example.com")

	// No bearer token: the guard refuses before any revocation happens.
	resp := postJSON(t, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The session is untouched.
	resp = postJSON(t, srv.URL+"/auth/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "dave@example.com")

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
			"identifier": "dave@example.com",
			"password":   "wrong password",
		})
		resp.Body.Close()
	}

	// Even the correct password is refused while locked.
	resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
		"identifier": "dave@example.com",
		"password":   "correct horse battery",
	})
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	body := decodeBody[ErrorBody](t, resp)
	assert.Equal(t, KindLocked, body.Kind)
}

func TestRegisterDuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "erin@example.com")

	resp := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"identifier": "erin@example.com",
		"password":   "correct horse battery",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[ErrorBody](t, resp)
	assert.Equal(t, KindConflict, body.Kind)
}

func TestMeRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "frank@example.com")
	session := login(t, srv, "frank@example.com")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	me := decodeBody[meResponse](t, resp)
	assert.Equal(t, session.PrincipalID, me.PrincipalID)

	resp, err = http.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

// End to end: a guardian-wrapped client with a stale access token reaches a
// protected endpoint without the caller ever seeing the refresh.
func TestGuardianTransparentRefresh(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "grace@example.com")
	session := login(t, srv, "grace@example.com")

	g, err := guardian.NewGuardian(guardian.Config{
		RefreshURL: srv.URL + "/auth/refresh",
	})
	require.NoError(t, err)
	// An unreadable access token forces a refresh before the first call.
	require.NoError(t, g.SetSession(context.Background(), guardian.Pair{
		AccessToken:  "stale-opaque-value",
		RefreshToken: session.RefreshToken,
	}))

	client := &http.Client{Transport: g}
	resp, err := client.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	me := decodeBody[meResponse](t, resp)
	assert.Equal(t, session.PrincipalID, me.PrincipalID)

	pair, err := g.Session(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, pair.RefreshToken, "refresh token must have rotated")
}
