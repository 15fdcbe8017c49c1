// Package guardian wraps an http.Client transport with transparent token
// handling: it attaches the current access token, refreshes it before it
// expires, collapses concurrent refreshes into one, and retries a request
// once after a server-side 401.
//
// The guardian never verifies token signatures. It only reads the expiry
// claim to decide when to refresh; authorization remains entirely the
// server's call.
package guardian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goRefresh/token"
)

// ErrNoSession is an exported constant or variable used by the authentication engine.
var ErrNoSession = errors.New("no session in token cache")

// ErrRefreshDenied is an exported constant or variable used by the authentication engine.
var ErrRefreshDenied = errors.New("refresh rejected by server")

// ErrRefreshUnavailable is an exported constant or variable used by the authentication engine.
var ErrRefreshUnavailable = errors.New("refresh endpoint unreachable")

const (
	defaultRefreshTimeout = 15 * time.Second
	defaultExpiryMargin   = 10 * time.Second
)

// Config defines a public type used by goRefresh APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// RefreshURL is the absolute URL of the server's refresh endpoint.
	RefreshURL string

	// RefreshTimeout bounds a single refresh round trip. Zero means 15s.
	RefreshTimeout time.Duration

	// ExpiryMargin widens the local expiry pre-check so a token about to
	// expire mid-flight is refreshed up front. Zero means 10s.
	ExpiryMargin time.Duration

	// Base is the transport requests are sent through. Nil means
	// http.DefaultTransport.
	Base http.RoundTripper

	// Cache holds the current pair. Nil means an in-memory cache.
	Cache Cache

	// OnLogout runs after a forced logout, once the cache is cleared.
	OnLogout func()

	// Logger receives refresh and logout events. Zero value is silent.
	Logger zerolog.Logger
}

// Guardian defines a public type used by goRefresh APIs.
//
// Guardian instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Guardian struct {
	config Config
	cache  Cache
	flight refreshFlight
	logger zerolog.Logger
}

// NewGuardian describes the newguardian operation and its observable behavior.
//
// NewGuardian may return an error when input validation, dependency calls, or security checks fail.
// NewGuardian does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewGuardian(cfg Config) (*Guardian, error) {
	if cfg.RefreshURL == "" {
		return nil, errors.New("refresh URL required")
	}
	if cfg.RefreshTimeout < 0 || cfg.ExpiryMargin < 0 {
		return nil, errors.New("negative duration in guardian config")
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = defaultExpiryMargin
	}
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Guardian{
		config: cfg,
		cache:  cache,
		logger: cfg.Logger,
	}, nil
}

// SetSession stores a freshly issued pair, typically right after login.
func (g *Guardian) SetSession(ctx context.Context, pair Pair) error {
	if pair.Empty() {
		return errors.New("empty token pair")
	}
	return g.cache.Store(ctx, pair)
}

// Session returns the cached pair without touching the network.
func (g *Guardian) Session(ctx context.Context) (Pair, error) {
	pair, err := g.cache.Load(ctx)
	if err != nil {
		return Pair{}, err
	}
	if pair.Empty() {
		return Pair{}, ErrNoSession
	}
	return pair, nil
}

// Logout discards the local session. The server-side revoke is the
// caller's job; the guardian only owns the client copy.
func (g *Guardian) Logout(ctx context.Context) error {
	return g.cache.Clear(ctx)
}

// EnsureFresh returns a pair whose access token is usable right now,
// refreshing through the single-flight gate when the cached one is stale.
func (g *Guardian) EnsureFresh(ctx context.Context) (Pair, error) {
	pair, err := g.Session(ctx)
	if err != nil {
		return Pair{}, err
	}
	if !g.stale(pair.AccessToken) {
		return pair, nil
	}
	return g.refreshThroughFlight(ctx)
}

// ForceRefresh rotates the pair regardless of the local expiry check.
// Used after the server answers 401 to a token the client thought fresh.
func (g *Guardian) ForceRefresh(ctx context.Context) (Pair, error) {
	rejected, err := g.Session(ctx)
	if err != nil {
		return Pair{}, err
	}
	return g.refreshAfterReject(ctx, rejected)
}

// stale reports whether the access token should be refreshed before use.
// Unreadable tokens count as stale so a corrupt cache heals itself.
func (g *Guardian) stale(accessToken string) bool {
	exp, err := token.PeekExpiry(accessToken)
	if err != nil {
		return true
	}
	return token.Expired(exp, time.Now(), g.config.ExpiryMargin)
}

func (g *Guardian) refreshThroughFlight(ctx context.Context) (Pair, error) {
	return g.flight.Do(ctx, func() (Pair, error) {
		// A previous flight may have rotated while this caller queued up.
		pair, err := g.cache.Load(ctx)
		if err != nil {
			return Pair{}, err
		}
		if pair.Empty() {
			return Pair{}, ErrNoSession
		}
		if !g.stale(pair.AccessToken) {
			return pair, nil
		}
		return g.refresh(ctx, pair)
	})
}

// refreshAfterReject rotates even when the local expiry check says the
// token is fine, because the server already rejected it. The only reason
// to skip the network call is that another flight replaced the rejected
// pair while this caller queued up.
func (g *Guardian) refreshAfterReject(ctx context.Context, rejected Pair) (Pair, error) {
	return g.flight.Do(ctx, func() (Pair, error) {
		pair, err := g.cache.Load(ctx)
		if err != nil {
			return Pair{}, err
		}
		if pair.Empty() {
			return Pair{}, ErrNoSession
		}
		if pair.AccessToken != rejected.AccessToken {
			return pair, nil
		}
		return g.refresh(ctx, pair)
	})
}

func (g *Guardian) refresh(ctx context.Context, current Pair) (Pair, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.RefreshTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return Pair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.RefreshURL, bytes.NewReader(body))
	if err != nil {
		return Pair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.config.Base.RoundTrip(req)
	if err != nil {
		g.forceLogout(ctx, "refresh transport failure")
		return Pair{}, errors.Join(ErrRefreshUnavailable, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		g.forceLogout(ctx, "refresh rejected")
		return Pair{}, ErrRefreshDenied
	default:
		g.forceLogout(ctx, "refresh unexpected status")
		return Pair{}, fmt.Errorf("%w: status %d", ErrRefreshUnavailable, resp.StatusCode)
	}

	var next Pair
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil || next.Empty() {
		g.forceLogout(ctx, "refresh malformed response")
		return Pair{}, errors.Join(ErrRefreshUnavailable, err)
	}

	if err := g.cache.Store(ctx, next); err != nil {
		return Pair{}, err
	}
	g.logger.Debug().Msg("token pair rotated")
	return next, nil
}

func (g *Guardian) forceLogout(ctx context.Context, reason string) {
	if err := g.cache.Clear(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("clear token cache")
	}
	g.logger.Info().Str("reason", reason).Msg("forced logout")
	if g.config.OnLogout != nil {
		g.config.OnLogout()
	}
}

// RoundTrip implements http.RoundTripper. Requests that already carry an
// Authorization header pass through untouched, and so do requests made
// with nothing in the cache: an anonymous call is the server's to judge.
func (g *Guardian) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return g.config.Base.RoundTrip(req)
	}

	ctx := req.Context()
	if _, err := g.Session(ctx); errors.Is(err, ErrNoSession) {
		return g.config.Base.RoundTrip(req)
	}

	for attempt := 0; ; attempt++ {
		pair, err := g.EnsureFresh(ctx)
		if err != nil {
			return nil, err
		}

		clone, err := cloneRequest(req, attempt)
		if err != nil {
			return nil, err
		}
		clone.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		resp, err := g.config.Base.RoundTrip(clone)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || attempt > 0 || !retryable(req) {
			return resp, nil
		}

		// The server disagreed with our local expiry check. Spend the one
		// retry on a forced rotation of the pair that just got rejected.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if _, err := g.refreshAfterReject(ctx, pair); err != nil {
			return nil, err
		}
	}
}

func retryable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
