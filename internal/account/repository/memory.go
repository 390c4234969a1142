package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"account-mirror/internal/account/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness and conditional-update
// rules as the Postgres implementation. Used by service tests and local tooling.
type MemoryRepository struct {
	mu        sync.Mutex
	byID      map[string]*domain.Account
	attempted map[string]time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Account), attempted: make(map[string]time.Time)}
}

func clone(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (r *MemoryRepository) find(match func(*domain.Account) bool) *domain.Account {
	for _, a := range r.byID {
		if match(a) {
			return clone(a)
		}
	}
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(a *domain.Account) bool { return a.Email == email }), nil
}

func (r *MemoryRepository) GetByPhone(_ context.Context, phone string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(a *domain.Account) bool { return a.Phone == phone }), nil
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == a.Email {
			return ErrDuplicateEmail
		}
		if existing.Phone == a.Phone {
			return ErrDuplicatePhone
		}
	}
	r.byID[a.ID] = clone(a)
	return nil
}

func (r *MemoryRepository) MarkEmailVerified(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.EmailVerified {
		return false, nil
	}
	a.EmailVerified = true
	a.Active = true
	a.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) Approve(_ context.Context, id, approverID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Kind != domain.KindMember || a.ParentID != approverID || a.Approved {
		return false, nil
	}
	a.Approved = true
	a.ApprovedBy = approverID
	t := at
	a.ApprovedAt = &t
	a.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) list(match func(*domain.Account) bool, less func(a, b *domain.Account) bool) []*domain.Account {
	var out []*domain.Account
	for _, a := range r.byID {
		if match(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *MemoryRepository) ListPendingByParent(_ context.Context, parentID string) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(
		func(a *domain.Account) bool { return a.ParentID == parentID && a.Pending() },
		func(a, b *domain.Account) bool { return a.CreatedAt.Before(b.CreatedAt) },
	), nil
}

func (r *MemoryRepository) ListUnmirrored(_ context.Context, limit int) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.list(
		func(a *domain.Account) bool { return a.MirrorID == "" && a.EmailVerified },
		func(a, b *domain.Account) bool {
			ta, aok := r.attempted[a.ID]
			tb, bok := r.attempted[b.ID]
			if aok != bok {
				return !aok
			}
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
			if a.Kind != b.Kind {
				return a.Kind == domain.KindPrimary
			}
			return a.CreatedAt.Before(b.CreatedAt)
		},
	)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) update(id string, at time.Time, fn func(*domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		fn(a)
		a.UpdatedAt = at
	}
	return nil
}

func (r *MemoryRepository) SetMirrorID(_ context.Context, id, mirrorID string, at time.Time) error {
	return r.update(id, at, func(a *domain.Account) { a.MirrorID = mirrorID })
}

func (r *MemoryRepository) MarkMirrorAttempt(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok && a.MirrorID == "" {
		r.attempted[id] = at
	}
	return nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id string, p domain.Profile, at time.Time) error {
	return r.update(id, at, func(a *domain.Account) { a.Profile = p })
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	return r.update(id, at, func(a *domain.Account) { a.PasswordHash = passwordHash })
}

// Put stores a as-is, bypassing uniqueness checks. For seeding test fixtures.
func (r *MemoryRepository) Put(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = clone(a)
}
