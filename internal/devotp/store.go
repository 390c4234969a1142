// Package devotp keeps a readable copy of issued codes for local development (GET /dev/otp).
// It is only wired when OTP_RETURN_TO_CLIENT=true, which config refuses in production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes by identifier for dev-only retrieval.
type Store interface {
	// Put stores code for identifier until expiresAt.
	Put(ctx context.Context, identifier, code string, expiresAt time.Time)
	// Get returns the code for identifier if present and not expired.
	Get(ctx context.Context, identifier string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores code for identifier until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, identifier, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[identifier] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code if present and unexpired; expired entries are dropped.
func (s *MemoryStore) Get(ctx context.Context, identifier string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[identifier]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, identifier)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
