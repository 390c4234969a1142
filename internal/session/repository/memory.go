package repository

import (
	"context"
	"sync"
	"time"

	"account-mirror/internal/session/domain"
)

// MemoryRepository is an in-process Repository; RotateRefresh is a compare-and-swap under its mutex.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.m[s.ID] = &c
	return nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		t := at
		s.RevokedAt = &t
	}
	return nil
}

func (r *MemoryRepository) RevokeAllByAccount(_ context.Context, accountID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.AccountID == accountID && s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
		}
	}
	return nil
}

func (r *MemoryRepository) RotateRefresh(_ context.Context, id, oldJti, newJti, newHash string, seenAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.RevokedAt != nil || s.RefreshJti != oldJti {
		return false, nil
	}
	s.RefreshJti = newJti
	s.RefreshTokenHash = newHash
	t := seenAt
	s.LastSeenAt = &t
	return true, nil
}
