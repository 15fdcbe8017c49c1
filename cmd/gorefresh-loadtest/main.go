package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRefresh/principal"
	"github.com/MrEthical07/goRefresh/token"
)

type principalState struct {
	id    string
	token string
	mu    sync.Mutex
}

func main() {
	var (
		principals  = flag.Int("principals", 100000, "number of principals to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := principal.NewRedisStore(client)

	tokens, err := token.NewManager(token.Config{
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Secret:     []byte("loadtest-secret-0123456789abcdef"),
		Issuer:     "gorefresh-loadtest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token manager: %v\n", err)
		os.Exit(1)
	}

	states := make([]principalState, *principals)
	accessTokens := make([]string, *principals)
	fmt.Printf("seeding %d principals...\n", *principals)
	startSeed := time.Now()
	for i := 0; i < *principals; i++ {
		id := fmt.Sprintf("p-%d", i)
		refresh := fmt.Sprintf("rt-%d-0", i)
		states[i] = principalState{id: id, token: refresh}

		if err := store.Create(ctx, &principal.Principal{
			ID:           id,
			Identifier:   fmt.Sprintf("user-%d@example.com", i),
			PasswordHash: "unused-for-loadtest",
			Role:         "USER",
			Status:       principal.StatusActive,
			Verified:     true,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.SaveRefreshToken(ctx, id, refresh, time.Now().Add(24*time.Hour)); err != nil {
			fmt.Fprintf(os.Stderr, "save refresh failed: %v\n", err)
			os.Exit(1)
		}

		access, err := tokens.MintAccess(id, "USER")
		if err != nil {
			fmt.Fprintf(os.Stderr, "mint failed: %v\n", err)
			os.Exit(1)
		}
		accessTokens[i] = access
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(tokens, accessTokens, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
}

// runValidatePhase measures the stateless hot path: parse and verify an
// access token without touching the store.
func runValidatePhase(tokens *token.Manager, accessTokens []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(accessTokens))
				t0 := time.Now()
				_, err := tokens.ParseAccess(accessTokens[idx])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRotatePhase measures the compare-and-swap rotation write against the
// store under contention.
func runRotatePhase(ctx context.Context, store *principal.RedisStore, states []principalState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	expiresAt := time.Now().Add(24 * time.Hour)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				state.mu.Lock()
				current := state.token
				next := fmt.Sprintf("%s-%d", state.id, i+worker+1)
				t0 := time.Now()
				_, err := store.RotateRefreshToken(ctx, state.id, current, next, expiresAt)
				d := time.Since(t0)
				if err == nil {
					state.token = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
