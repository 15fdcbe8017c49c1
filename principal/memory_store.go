package principal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store] guarded by a single mutex. It is the
// reference implementation for rotation and lockout semantics and is meant
// for tests and single-node development, not production.
type MemoryStore struct {
	mu           sync.Mutex
	byID         map[string]*Principal
	byIdentifier map[string]string
	now          func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:         make(map[string]*Principal),
		byIdentifier: make(map[string]string),
		now:          time.Now,
	}
}

// SetClock overrides the store clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create describes the create operation and its observable behavior.
func (s *MemoryStore) Create(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdentifier[p.Identifier]; exists {
		return ErrDuplicateIdentifier
	}

	stored := p.Clone()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.byID[stored.ID] = stored
	s.byIdentifier[stored.Identifier] = stored.ID
	return nil
}

// GetByID describes the getbyid operation and its observable behavior.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id)
}

// GetByIdentifier describes the getbyidentifier operation and its observable behavior.
func (s *MemoryStore) GetByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return s.lookup(id)
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	p.UpdatedAt = s.now()
	return nil
}

// SoftDelete describes the softdelete operation and its observable behavior.
func (s *MemoryStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = StatusDeleted
	p.RefreshToken = ""
	p.RefreshExpiresAt = time.Time{}
	p.UpdatedAt = s.now()
	return nil
}

// RecordLoginFailure describes the recordloginfailure operation and its observable behavior.
func (s *MemoryStore) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return nil, ErrNotFound
	}

	p.FailedLogins++
	if threshold > 0 && p.FailedLogins >= threshold {
		p.LockedUntil = s.now().Add(lockFor)
	}
	p.UpdatedAt = s.now()
	return p.Clone(), nil
}

// ResetLoginFailures describes the resetloginfailures operation and its observable behavior.
func (s *MemoryStore) ResetLoginFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.FailedLogins = 0
	p.LockedUntil = time.Time{}
	p.UpdatedAt = s.now()
	return nil
}

// SaveRefreshToken describes the saverefreshtoken operation and its observable behavior.
func (s *MemoryStore) SaveRefreshToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.RefreshToken = token
	p.RefreshExpiresAt = expiresAt
	p.UpdatedAt = s.now()
	return nil
}

// RotateRefreshToken describes the rotaterefreshtoken operation and its observable behavior.
//
// The compare and the swap happen under one lock acquisition, so exactly one
// of N concurrent callers presenting the same current value can win.
func (s *MemoryStore) RotateRefreshToken(_ context.Context, id, current, next string, expiresAt time.Time) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return nil, ErrNotFound
	}

	if p.RefreshToken == "" {
		return nil, ErrRefreshRevoked
	}
	if p.RefreshExpired(s.now()) {
		p.RefreshToken = ""
		p.RefreshExpiresAt = time.Time{}
		return nil, ErrRefreshExpired
	}
	if p.RefreshToken != current {
		// Superseded or replayed value. The stored token stays put so
		// the holder of the current pair is unaffected.
		return nil, ErrRefreshMismatch
	}

	p.RefreshToken = next
	p.RefreshExpiresAt = expiresAt
	p.UpdatedAt = s.now()
	return p.Clone(), nil
}

// ClearRefreshToken describes the clearrefreshtoken operation and its observable behavior.
func (s *MemoryStore) ClearRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.RefreshToken = ""
	p.RefreshExpiresAt = time.Time{}
	p.UpdatedAt = s.now()
	return nil
}

// SetVerificationToken describes the setverificationtoken operation and its observable behavior.
func (s *MemoryStore) SetVerificationToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.VerificationToken = token
	p.VerificationExpiresAt = expiresAt
	p.UpdatedAt = s.now()
	return nil
}

// GetByVerificationToken describes the getbyverificationtoken operation and its observable behavior.
func (s *MemoryStore) GetByVerificationToken(_ context.Context, token string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return nil, ErrNotFound
	}
	for _, p := range s.byID {
		if p.VerificationToken == token && p.Status != StatusDeleted {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// MarkVerified describes the markverified operation and its observable behavior.
func (s *MemoryStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.Verified = true
	if p.Status == StatusPendingVerification {
		p.Status = StatusActive
	}
	p.VerificationToken = ""
	p.VerificationExpiresAt = time.Time{}
	p.UpdatedAt = s.now()
	return nil
}

// SetResetToken describes the setresettoken operation and its observable behavior.
func (s *MemoryStore) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.ResetToken = token
	p.ResetExpiresAt = expiresAt
	p.UpdatedAt = s.now()
	return nil
}

// GetByResetToken describes the getbyresettoken operation and its observable behavior.
func (s *MemoryStore) GetByResetToken(_ context.Context, token string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return nil, ErrNotFound
	}
	for _, p := range s.byID {
		if p.ResetToken == token && p.Status != StatusDeleted {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ResetCredentials describes the resetcredentials operation and its observable behavior.
func (s *MemoryStore) ResetCredentials(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status == StatusDeleted {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	p.ResetToken = ""
	p.ResetExpiresAt = time.Time{}
	p.RefreshToken = ""
	p.RefreshExpiresAt = time.Time{}
	p.FailedLogins = 0
	p.LockedUntil = time.Time{}
	p.UpdatedAt = s.now()
	return nil
}

// Ping describes the ping operation and its observable behavior.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) lookup(id string) (*Principal, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}
