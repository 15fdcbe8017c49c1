package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/goRefresh/principal/migrations"
)

// PostgresStore persists principals in a single table and implements
// refresh rotation as a conditional UPDATE, so the compare-and-swap is
// enforced by the database rather than by the caller.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

const pgUniqueViolation = "23505"

const principalColumns = `id, identifier, name, password_hash, role, status, verified,
	failed_logins, locked_until, refresh_token, refresh_expires_at,
	verification_token, verification_expires_at, reset_token, reset_expires_at,
	created_at, updated_at`

// NewPostgresStore opens a pgx-backed connection pool and applies the
// embedded migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Create describes the create operation and its observable behavior.
func (s *PostgresStore) Create(ctx context.Context, p *Principal) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, identifier, name, password_hash, role, status, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		p.ID, p.Identifier, p.Name, p.PasswordHash, p.Role, p.Status, p.Verified, now,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateIdentifier
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetByID describes the getbyid operation and its observable behavior.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Principal, error) {
	return s.queryOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
}

// GetByIdentifier describes the getbyidentifier operation and its observable behavior.
func (s *PostgresStore) GetByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	return s.queryOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE identifier = $1`, identifier)
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return s.execLive(ctx, `
		UPDATE principals SET password_hash = $1, updated_at = $2
		WHERE id = $3 AND status <> $4`,
		passwordHash, s.now(), id, StatusDeleted,
	)
}

// SoftDelete describes the softdelete operation and its observable behavior.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	return s.execLive(ctx, `
		UPDATE principals
		SET status = $1, refresh_token = '', refresh_expires_at = NULL, updated_at = $2
		WHERE id = $3`,
		StatusDeleted, s.now(), id,
	)
}

// RecordLoginFailure increments the failure counter and opens the lock
// window at the threshold in a single statement, so concurrent failures
// cannot lose updates.
func (s *PostgresStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (*Principal, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE principals
		SET failed_logins = failed_logins + 1,
		    locked_until = CASE WHEN $1 > 0 AND failed_logins + 1 >= $1 THEN $2 ELSE locked_until END,
		    updated_at = $3
		WHERE id = $4 AND status <> $5
		RETURNING `+principalColumns,
		threshold, now.Add(lockFor), now, id, StatusDeleted,
	)
	return scanPrincipal(row)
}

// ResetLoginFailures describes the resetloginfailures operation and its observable behavior.
func (s *PostgresStore) ResetLoginFailures(ctx context.Context, id string) error {
	return s.execLive(ctx, `
		UPDATE principals SET failed_logins = 0, locked_until = NULL, updated_at = $1
		WHERE id = $2`,
		s.now(), id,
	)
}

// SaveRefreshToken describes the saverefreshtoken operation and its observable behavior.
func (s *PostgresStore) SaveRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return s.execLive(ctx, `
		UPDATE principals SET refresh_token = $1, refresh_expires_at = $2, updated_at = $3
		WHERE id = $4 AND status <> $5`,
		token, expiresAt, s.now(), id, StatusDeleted,
	)
}

// RotateRefreshToken atomically replaces the persisted refresh token with
// a conditional UPDATE. When zero rows match, a follow-up read classifies
// the loss as revoked, expired, or a mismatch. A mismatch leaves the
// stored value untouched so the holder of the current pair keeps working.
func (s *PostgresStore) RotateRefreshToken(ctx context.Context, id, current, next string, expiresAt time.Time) (*Principal, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE principals
		SET refresh_token = $1, refresh_expires_at = $2, updated_at = $3
		WHERE id = $4 AND status <> $5
		  AND refresh_token = $6 AND refresh_token <> ''
		  AND (refresh_expires_at IS NULL OR refresh_expires_at > $3)
		RETURNING `+principalColumns,
		next, expiresAt, now, id, StatusDeleted, current,
	)
	p, err := scanPrincipal(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case existing.Status == StatusDeleted:
		return nil, ErrNotFound
	case existing.RefreshToken == "":
		return nil, ErrRefreshRevoked
	case existing.RefreshExpired(now):
		s.clearRefresh(ctx, id)
		return nil, ErrRefreshExpired
	case existing.RefreshToken != current:
		return nil, ErrRefreshMismatch
	default:
		// The conditional update raced another writer between our two
		// statements. Treat it like any other superseded presentation.
		return nil, ErrRefreshMismatch
	}
}

// ClearRefreshToken describes the clearrefreshtoken operation and its observable behavior.
func (s *PostgresStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.execLive(ctx, `
		UPDATE principals SET refresh_token = '', refresh_expires_at = NULL, updated_at = $1
		WHERE id = $2`,
		s.now(), id,
	)
}

// SetVerificationToken describes the setverificationtoken operation and its observable behavior.
func (s *PostgresStore) SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return s.execLive(ctx, `
		UPDATE principals SET verification_token = $1, verification_expires_at = $2, updated_at = $3
		WHERE id = $4 AND status <> $5`,
		token, expiresAt, s.now(), id, StatusDeleted,
	)
}

// GetByVerificationToken describes the getbyverificationtoken operation and its observable behavior.
func (s *PostgresStore) GetByVerificationToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `
		SELECT `+principalColumns+` FROM principals
		WHERE verification_token = $1 AND status <> $2`,
		token, StatusDeleted,
	)
}

// MarkVerified describes the markverified operation and its observable behavior.
func (s *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	return s.execLive(ctx, `
		UPDATE principals
		SET verified = TRUE,
		    status = CASE WHEN status = $1 THEN $2 ELSE status END,
		    verification_token = '', verification_expires_at = NULL,
		    updated_at = $3
		WHERE id = $4 AND status <> $5`,
		StatusPendingVerification, StatusActive, s.now(), id, StatusDeleted,
	)
}

// SetResetToken describes the setresettoken operation and its observable behavior.
func (s *PostgresStore) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return s.execLive(ctx, `
		UPDATE principals SET reset_token = $1, reset_expires_at = $2, updated_at = $3
		WHERE id = $4 AND status <> $5`,
		token, expiresAt, s.now(), id, StatusDeleted,
	)
}

// GetByResetToken describes the getbyresettoken operation and its observable behavior.
func (s *PostgresStore) GetByResetToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `
		SELECT `+principalColumns+` FROM principals
		WHERE reset_token = $1 AND status <> $2`,
		token, StatusDeleted,
	)
}

// ResetCredentials describes the resetcredentials operation and its observable behavior.
func (s *PostgresStore) ResetCredentials(ctx context.Context, id, passwordHash string) error {
	return s.execLive(ctx, `
		UPDATE principals
		SET password_hash = $1,
		    reset_token = '', reset_expires_at = NULL,
		    refresh_token = '', refresh_expires_at = NULL,
		    failed_logins = 0, locked_until = NULL,
		    updated_at = $2
		WHERE id = $3 AND status <> $4`,
		passwordHash, s.now(), id, StatusDeleted,
	)
}

// Ping describes the ping operation and its observable behavior.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) clearRefresh(ctx context.Context, id string) {
	// Best effort: rotation already failed with a definitive sentinel.
	_, _ = s.db.ExecContext(ctx, `
		UPDATE principals SET refresh_token = '', refresh_expires_at = NULL, updated_at = $1
		WHERE id = $2`,
		s.now(), id,
	)
}

func (s *PostgresStore) execLive(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...interface{}) (*Principal, error) {
	return scanPrincipal(s.db.QueryRowContext(ctx, query, args...))
}

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var (
		p            Principal
		lockedUntil  sql.NullTime
		refreshExp   sql.NullTime
		verifyExp    sql.NullTime
		resetExp     sql.NullTime
		statusNumber int16
	)
	err := row.Scan(
		&p.ID, &p.Identifier, &p.Name, &p.PasswordHash, &p.Role, &statusNumber, &p.Verified,
		&p.FailedLogins, &lockedUntil, &p.RefreshToken, &refreshExp,
		&p.VerificationToken, &verifyExp, &p.ResetToken, &resetExp,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.Status = Status(statusNumber)
	if lockedUntil.Valid {
		p.LockedUntil = lockedUntil.Time
	}
	if refreshExp.Valid {
		p.RefreshExpiresAt = refreshExp.Time
	}
	if verifyExp.Valid {
		p.VerificationExpiresAt = verifyExp.Time
	}
	if resetExp.Valid {
		p.ResetExpiresAt = resetExp.Time
	}
	return &p, nil
}
