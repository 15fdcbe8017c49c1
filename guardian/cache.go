package guardian

import (
	"context"
	"sync"
)

// Pair is the client-side copy of an issued token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no session.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Cache stores the current token pair between requests. Implementations
// must be safe for concurrent use; the guardian serializes writes but
// reads can race a rotation.
type Cache interface {
	Load(ctx context.Context) (Pair, error)
	Store(ctx context.Context, pair Pair) error
	Clear(ctx context.Context) error
}

// MemoryCache keeps the pair in process memory. Sessions do not survive
// a restart; use [SQLiteCache] when they should.
type MemoryCache struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryCache creates an empty [MemoryCache].
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Load describes the load operation and its observable behavior.
func (c *MemoryCache) Load(context.Context) (Pair, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pair, nil
}

// Store describes the store operation and its observable behavior.
func (c *MemoryCache) Store(_ context.Context, pair Pair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = pair
	return nil
}

// Clear describes the clear operation and its observable behavior.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = Pair{}
	return nil
}
