package guardian

import (
	"context"
	"sync"
)

type flightResult struct {
	pair Pair
	err  error
}

// refreshFlight collapses concurrent refresh attempts into one call. The
// first caller becomes the leader and runs the refresh; everyone else
// parks in an arrival-ordered queue and receives the leader's result, so
// N stale requests cost exactly one rotation.
type refreshFlight struct {
	mu      sync.Mutex
	active  bool
	waiters []chan flightResult
}

// Do runs fn once per burst of concurrent callers. Waiters abandoned via
// ctx still leave the queue drained; their buffered channels absorb the
// late result.
func (f *refreshFlight) Do(ctx context.Context, fn func() (Pair, error)) (Pair, error) {
	f.mu.Lock()
	if f.active {
		ch := make(chan flightResult, 1)
		f.waiters = append(f.waiters, ch)
		f.mu.Unlock()
		select {
		case res := <-ch:
			return res.pair, res.err
		case <-ctx.Done():
			return Pair{}, ctx.Err()
		}
	}
	f.active = true
	f.mu.Unlock()

	pair, err := fn()

	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.active = false
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- flightResult{pair: pair, err: err}
	}
	return pair, err
}
