package repository

import (
	"context"
	"sync"
	"time"

	"account-mirror/internal/invitation/domain"
)

// MemoryRepository is an in-process Repository; Consume is atomic under its mutex.
type MemoryRepository struct {
	mu      sync.Mutex
	byToken map[string]*domain.Invitation
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byToken: make(map[string]*domain.Invitation)}
}

func (r *MemoryRepository) Create(_ context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *inv
	r.byToken[inv.Token] = &c
	return nil
}

func (r *MemoryRepository) FindUsable(_ context.Context, email, issuerID string, now time.Time) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Invitation
	for _, inv := range r.byToken {
		if inv.Email == email && inv.IssuerID == issuerID && inv.Usable(now) {
			if best == nil || inv.CreatedAt.After(best.CreatedAt) {
				best = inv
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (r *MemoryRepository) Consume(_ context.Context, token, email string, now time.Time) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byToken[token]
	if !ok || inv.Email != email || !inv.Usable(now) {
		return nil, nil
	}
	inv.Used = true
	c := *inv
	return &c, nil
}

// Get returns the stored invitation for token. For test assertions.
func (r *MemoryRepository) Get(token string) *domain.Invitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.byToken[token]; ok {
		c := *inv
		return &c
	}
	return nil
}
