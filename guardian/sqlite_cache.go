package guardian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteCache persists the token pair in a local SQLite file, so a client
// process keeps its session across restarts. A single-row table is enough;
// the guardian never holds more than one pair.
type SQLiteCache struct {
	db *sql.DB
}

const sqliteCacheSchema = `
CREATE TABLE IF NOT EXISTS token_pair (
    slot          INTEGER PRIMARY KEY CHECK (slot = 1),
    access_token  TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    updated_at    INTEGER NOT NULL
);`

// NewSQLiteCache opens (or creates) the cache database at dsn. Typical
// values are a file path or ":memory:".
func NewSQLiteCache(ctx context.Context, dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open token cache: %w", err)
	}
	// One writer at a time keeps rotation writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate token cache: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Load describes the load operation and its observable behavior.
func (c *SQLiteCache) Load(ctx context.Context) (Pair, error) {
	var pair Pair
	err := c.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token FROM token_pair WHERE slot = 1`,
	).Scan(&pair.AccessToken, &pair.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("load token pair: %w", err)
	}
	return pair, nil
}

// Store describes the store operation and its observable behavior.
func (c *SQLiteCache) Store(ctx context.Context, pair Pair) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO token_pair (slot, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, unixepoch())
		ON CONFLICT (slot) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		pair.AccessToken, pair.RefreshToken,
	)
	if err != nil {
		return fmt.Errorf("store token pair: %w", err)
	}
	return nil
}

// Clear describes the clear operation and its observable behavior.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM token_pair WHERE slot = 1`); err != nil {
		return fmt.Errorf("clear token pair: %w", err)
	}
	return nil
}
