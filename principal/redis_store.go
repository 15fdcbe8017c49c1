package principal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

/* ==== KEY LAYOUT ==== */

// RedisStore persists principals as Redis hashes.
//
// Key layout:
//
//	rp:p:<id>          hash holding the principal record
//	rp:i:<identifier>  identifier index, value is the principal ID
//	rp:v:<token>       verification-token index with TTL
//	rp:r:<token>       reset-token index with TTL
//
// All time fields are stored as unix milliseconds. Refresh rotation and
// login-failure accounting run as Lua scripts so that concurrent callers
// observe a single atomic transition.
type RedisStore struct {
	redis redis.UniversalClient
	now   func() time.Time
}

const (
	redisPrincipalPrefix    = "rp:p:"
	redisIdentifierPrefix   = "rp:i:"
	redisVerificationPrefix = "rp:v:"
	redisResetPrefix        = "rp:r:"
)

const (
	rotateStatusNotFound = 0
	rotateStatusExpired  = 1
	rotateStatusMismatch = 2
	rotateStatusRotated  = 3
)

/* ==== LUA SCRIPTS ==== */

// rotateRefreshScript performs the compare-and-swap at the heart of the
// rotation protocol. A mismatch means the caller lost the rotation race
// (or presented a replayed value); the stored token is left untouched so
// the winner's session stays alive.
const rotateRefreshScript = `
local key = KEYS[1]
local current = ARGV[1]
local next_token = ARGV[2]
local expires_at = ARGV[3]
local now = tonumber(ARGV[4])

if redis.call("EXISTS", key) == 0 then
  return {0}
end

local stored = redis.call("HGET", key, "refresh_token")
if not stored or stored == "" then
  return {0}
end

local stored_exp = tonumber(redis.call("HGET", key, "refresh_expires_at") or "0")
if stored_exp > 0 and stored_exp <= now then
  redis.call("HSET", key, "refresh_token", "", "refresh_expires_at", "0", "updated_at", ARGV[4])
  return {1}
end

if stored ~= current then
  return {2}
end

redis.call("HSET", key, "refresh_token", next_token, "refresh_expires_at", expires_at, "updated_at", ARGV[4])
return {3, redis.call("HGETALL", key)}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// recordFailureScript increments the failure counter and opens the lock
// window once the threshold is reached, in a single round trip.
const recordFailureScript = `
local key = KEYS[1]

if redis.call("EXISTS", key) == 0 then
  return nil
end

local attempts = redis.call("HINCRBY", key, "failed_logins", 1)
local threshold = tonumber(ARGV[1])
local locked_until = "0"

if threshold > 0 and attempts >= threshold then
  locked_until = ARGV[2]
  redis.call("HSET", key, "locked_until", locked_until)
end

redis.call("HSET", key, "updated_at", ARGV[3])
return {attempts, locked_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

/* ==== CONSTRUCTION ==== */

// NewRedisStore wraps an existing Redis client as a [Store].
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client, now: time.Now}
}

// SetClock overrides the store clock. Test hook.
func (s *RedisStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *RedisStore) key(id string) string {
	return redisPrincipalPrefix + id
}

/* ==== CRUD ==== */

// Create describes the create operation and its observable behavior.
func (s *RedisStore) Create(ctx context.Context, p *Principal) error {
	ok, err := s.redis.SetNX(ctx, redisIdentifierPrefix+p.Identifier, p.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrDuplicateIdentifier
	}

	now := s.now()
	stored := p.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.redis.HSet(ctx, s.key(p.ID), encodePrincipal(stored)).Err(); err != nil {
		// Best effort: release the index so the identifier is not burned.
		s.redis.Del(ctx, redisIdentifierPrefix+p.Identifier)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetByID describes the getbyid operation and its observable behavior.
func (s *RedisStore) GetByID(ctx context.Context, id string) (*Principal, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodePrincipal(id, fields), nil
}

// GetByIdentifier describes the getbyidentifier operation and its observable behavior.
func (s *RedisStore) GetByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	id, err := s.redis.Get(ctx, redisIdentifierPrefix+identifier).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
func (s *RedisStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return s.updateLive(ctx, id, map[string]interface{}{
		"password_hash": passwordHash,
	})
}

// SoftDelete describes the softdelete operation and its observable behavior.
func (s *RedisStore) SoftDelete(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return s.set(ctx, id, map[string]interface{}{
		"status":             strconv.Itoa(int(StatusDeleted)),
		"refresh_token":      "",
		"refresh_expires_at": "0",
	})
}

/* ==== LOCKOUT ==== */

// RecordLoginFailure describes the recordloginfailure operation and its observable behavior.
func (s *RedisStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (*Principal, error) {
	now := s.now()
	result, err := recordFailureLua.Run(
		ctx,
		s.redis,
		[]string{s.key(id)},
		threshold,
		strconv.FormatInt(now.Add(lockFor).UnixMilli(), 10),
		strconv.FormatInt(now.UnixMilli(), 10),
	).Result()
	if errors.Is(err, redis.Nil) || result == nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// ResetLoginFailures describes the resetloginfailures operation and its observable behavior.
func (s *RedisStore) ResetLoginFailures(ctx context.Context, id string) error {
	return s.updateLive(ctx, id, map[string]interface{}{
		"failed_logins": "0",
		"locked_until":  "0",
	})
}

/* ==== REFRESH ROTATION ==== */

// SaveRefreshToken describes the saverefreshtoken operation and its observable behavior.
func (s *RedisStore) SaveRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return s.updateLive(ctx, id, map[string]interface{}{
		"refresh_token":      token,
		"refresh_expires_at": strconv.FormatInt(expiresAt.UnixMilli(), 10),
	})
}

// RotateRefreshToken atomically replaces the persisted refresh token using
// a Lua CAS script. This is the core of the rotation protocol that enables
// reuse detection: exactly one of N concurrent callers presenting the same
// current value can win.
func (s *RedisStore) RotateRefreshToken(ctx context.Context, id, current, next string, expiresAt time.Time) (*Principal, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(id)},
		current,
		next,
		strconv.FormatInt(expiresAt.UnixMilli(), 10),
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		// Missing record and cleared token look the same to the script;
		// distinguish them for the caller.
		exists, existsErr := s.redis.Exists(ctx, s.key(id)).Result()
		if existsErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, existsErr)
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrRefreshRevoked
	case rotateStatusExpired:
		return nil, ErrRefreshExpired
	case rotateStatusMismatch:
		return nil, ErrRefreshMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated record payload", ErrUnavailable)
		}
		raw, ok := parts[1].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: invalid rotated record payload", ErrUnavailable)
		}
		fields := make(map[string]string, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			k, _ := raw[i].(string)
			v, _ := raw[i+1].(string)
			fields[k] = v
		}
		return decodePrincipal(id, fields), nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
	}
}

// ClearRefreshToken describes the clearrefreshtoken operation and its observable behavior.
func (s *RedisStore) ClearRefreshToken(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return s.set(ctx, id, map[string]interface{}{
		"refresh_token":      "",
		"refresh_expires_at": "0",
	})
}

/* ==== ONE-TIME TOKENS ==== */

// SetVerificationToken describes the setverificationtoken operation and its observable behavior.
func (s *RedisStore) SetVerificationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	if err := s.updateLive(ctx, id, map[string]interface{}{
		"verification_token":      token,
		"verification_expires_at": strconv.FormatInt(expiresAt.UnixMilli(), 10),
	}); err != nil {
		return err
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	if err := s.redis.Set(ctx, redisVerificationPrefix+token, id, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetByVerificationToken describes the getbyverificationtoken operation and its observable behavior.
func (s *RedisStore) GetByVerificationToken(ctx context.Context, token string) (*Principal, error) {
	return s.getByTokenIndex(ctx, redisVerificationPrefix, token)
}

// MarkVerified describes the markverified operation and its observable behavior.
func (s *RedisStore) MarkVerified(ctx context.Context, id string) error {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDeleted {
		return ErrNotFound
	}
	if p.VerificationToken != "" {
		s.redis.Del(ctx, redisVerificationPrefix+p.VerificationToken)
	}
	status := p.Status
	if status == StatusPendingVerification {
		status = StatusActive
	}
	return s.set(ctx, id, map[string]interface{}{
		"verified":                "1",
		"status":                  strconv.Itoa(int(status)),
		"verification_token":      "",
		"verification_expires_at": "0",
	})
}

// SetResetToken describes the setresettoken operation and its observable behavior.
func (s *RedisStore) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	if err := s.updateLive(ctx, id, map[string]interface{}{
		"reset_token":      token,
		"reset_expires_at": strconv.FormatInt(expiresAt.UnixMilli(), 10),
	}); err != nil {
		return err
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	if err := s.redis.Set(ctx, redisResetPrefix+token, id, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetByResetToken describes the getbyresettoken operation and its observable behavior.
func (s *RedisStore) GetByResetToken(ctx context.Context, token string) (*Principal, error) {
	return s.getByTokenIndex(ctx, redisResetPrefix, token)
}

// ResetCredentials describes the resetcredentials operation and its observable behavior.
func (s *RedisStore) ResetCredentials(ctx context.Context, id, passwordHash string) error {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDeleted {
		return ErrNotFound
	}
	if p.ResetToken != "" {
		s.redis.Del(ctx, redisResetPrefix+p.ResetToken)
	}
	return s.set(ctx, id, map[string]interface{}{
		"password_hash":      passwordHash,
		"reset_token":        "",
		"reset_expires_at":   "0",
		"refresh_token":      "",
		"refresh_expires_at": "0",
		"failed_logins":      "0",
		"locked_until":       "0",
	})
}

// Ping describes the ping operation and its observable behavior.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

/* ==== HELPERS ==== */

func (s *RedisStore) getByTokenIndex(ctx context.Context, prefix, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	id, err := s.redis.Get(ctx, prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusDeleted {
		return nil, ErrNotFound
	}
	return p, nil
}

// updateLive applies a partial update and refuses to touch deleted records.
func (s *RedisStore) updateLive(ctx context.Context, id string, fields map[string]interface{}) error {
	raw, err := s.redis.HGet(ctx, s.key(id), "status").Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status, _ := strconv.Atoi(raw); Status(status) == StatusDeleted {
		return ErrNotFound
	}
	return s.set(ctx, id, fields)
}

func (s *RedisStore) set(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.redis.HSet(ctx, s.key(id), fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

/* ==== CODEC ==== */

func encodePrincipal(p *Principal) map[string]interface{} {
	return map[string]interface{}{
		"identifier":              p.Identifier,
		"name":                    p.Name,
		"password_hash":           p.PasswordHash,
		"role":                    p.Role,
		"status":                  strconv.Itoa(int(p.Status)),
		"verified":                boolField(p.Verified),
		"failed_logins":           strconv.Itoa(p.FailedLogins),
		"locked_until":            timeField(p.LockedUntil),
		"refresh_token":           p.RefreshToken,
		"refresh_expires_at":      timeField(p.RefreshExpiresAt),
		"verification_token":      p.VerificationToken,
		"verification_expires_at": timeField(p.VerificationExpiresAt),
		"reset_token":             p.ResetToken,
		"reset_expires_at":        timeField(p.ResetExpiresAt),
		"created_at":              timeField(p.CreatedAt),
		"updated_at":              timeField(p.UpdatedAt),
	}
}

func decodePrincipal(id string, fields map[string]string) *Principal {
	status, _ := strconv.Atoi(fields["status"])
	failed, _ := strconv.Atoi(fields["failed_logins"])
	return &Principal{
		ID:                    id,
		Identifier:            fields["identifier"],
		Name:                  fields["name"],
		PasswordHash:          fields["password_hash"],
		Role:                  fields["role"],
		Status:                Status(status),
		Verified:              fields["verified"] == "1",
		FailedLogins:          failed,
		LockedUntil:           parseTimeField(fields["locked_until"]),
		RefreshToken:          fields["refresh_token"],
		RefreshExpiresAt:      parseTimeField(fields["refresh_expires_at"]),
		VerificationToken:     fields["verification_token"],
		VerificationExpiresAt: parseTimeField(fields["verification_expires_at"]),
		ResetToken:            fields["reset_token"],
		ResetExpiresAt:        parseTimeField(fields["reset_expires_at"]),
		CreatedAt:             parseTimeField(fields["created_at"]),
		UpdatedAt:             parseTimeField(fields["updated_at"]),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func timeField(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTimeField(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
