package goRefresh

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRefresh/principal"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func newRedisTestEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := principal.NewRedisStore(rdb)

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		mr.Close()
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	engine, _, done := newRedisTestEngine(t, engineTestConfig())
	defer done()

	mustRegister(t, engine, "alice", "correct-password-123")
	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	type refreshResult struct {
		pair *TokenPair
		err  error
	}
	results := make(chan refreshResult, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			pair, err := engine.Refresh(context.Background(), res.RefreshToken)
			results <- refreshResult{pair: pair, err: err}
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	var winner *TokenPair
	for res := range results {
		if res.err == nil {
			success++
			winner = res.pair
			continue
		}
		if errors.Is(res.err, ErrRefreshReuse) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", res.err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}

	// The losers must not have damaged the winner's session.
	if _, err := engine.Refresh(context.Background(), winner.RefreshToken); err != nil {
		t.Fatalf("winner's refresh token unusable after race: %v", err)
	}
}

func TestStaleRotateLeavesCurrentPairValid(t *testing.T) {
	engine, _, done := newRedisTestEngine(t, engineTestConfig())
	defer done()

	pid := mustRegister(t, engine, "alice", "correct-password-123")
	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rotated, err := engine.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	// The failed replay is an observable signal, not a revocation. The
	// legitimately current pair keeps rotating.
	next, err := engine.Refresh(context.Background(), rotated.RefreshToken)
	if err != nil {
		t.Fatalf("refresh with current token after replay failed: %v", err)
	}
	if vc, err := engine.ValidateAccess(context.Background(), next.AccessToken); err != nil || vc.PrincipalID != pid {
		t.Fatalf("access token from post-replay rotation unusable: %v", err)
	}
	if err := engine.Revoke(context.Background(), pid); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
}

func TestValidateAccessStaysStatelessWithoutStore(t *testing.T) {
	engine, mr, _ := newRedisTestEngine(t, engineTestConfig())
	defer engine.Close()

	mustRegister(t, engine, "alice", "correct-password-123")
	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		mr.Close()
		t.Fatalf("login failed: %v", err)
	}

	mr.Close() // drop the store before validating

	if _, err := engine.ValidateAccess(context.Background(), res.AccessToken); err != nil {
		t.Fatalf("expected stateless validate without store, got %v", err)
	}
	if err := engine.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from ping, got %v", err)
	}
}
