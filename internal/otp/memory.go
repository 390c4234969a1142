package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type codeEntry struct {
	code      string
	purpose   Purpose
	expiresAt time.Time
}

// MemoryStore is a process-local Store. It is only correct for a single instance.
type MemoryStore struct {
	mu       sync.Mutex
	codes    map[string]codeEntry
	verified map[string]time.Time
	nowF     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:    make(map[string]codeEntry),
		verified: make(map[string]time.Time),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue stores a fresh code for identifier. Expired codes and flags of other identifiers are
// dropped on the way so entries that are never verified do not accumulate.
func (s *MemoryStore) Issue(ctx context.Context, identifier string, purpose Purpose) (string, error) {
	code, err := GenerateCode(CodeLength)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	s.sweepLocked(now)
	s.codes[NormalizeIdentifier(identifier)] = codeEntry{code: code, purpose: purpose, expiresAt: now.Add(TTL)}
	return code, nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range s.codes {
		if !e.expiresAt.After(now) {
			delete(s.codes, k)
		}
	}
	for k, exp := range s.verified {
		if !exp.After(now) {
			delete(s.verified, k)
		}
	}
}

// Verify consumes a matching, unexpired code.
func (s *MemoryStore) Verify(ctx context.Context, identifier, code string) (Purpose, bool, error) {
	key := NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.codes, key)
		return "", false, nil
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		return "", false, nil
	}
	delete(s.codes, key)
	return e.purpose, true, nil
}

// MarkVerified sets the verified flag for identifier.
func (s *MemoryStore) MarkVerified(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	s.sweepLocked(now)
	s.verified[NormalizeIdentifier(identifier)] = now.Add(VerifiedTTL)
	return nil
}

// IsVerified reports whether the flag is set and unexpired.
func (s *MemoryStore) IsVerified(ctx context.Context, identifier string) (bool, error) {
	key := NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.verified[key]
	if !ok {
		return false, nil
	}
	if !exp.After(s.nowF()) {
		delete(s.verified, key)
		return false, nil
	}
	return true, nil
}

// ClearVerified removes the flag.
func (s *MemoryStore) ClearVerified(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verified, NormalizeIdentifier(identifier))
	return nil
}
