package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// consumeCodeLua atomically performs GET→compare→DEL.
// KEYS[1] = code key, ARGV[1] = provided code.
// Stored value is "<purpose>:<code>". Returns the purpose on match, nil otherwise.
var consumeCodeLua = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return false
end
local sep = string.find(v, ':', 1, true)
if not sep then
  redis.call('DEL', KEYS[1])
  return false
end
if string.sub(v, sep + 1) ~= ARGV[1] then
  return false
end
redis.call('DEL', KEYS[1])
return string.sub(v, 1, sep - 1)
`)

// RedisStore keeps codes and verified flags in Redis so every API instance sees the same state.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. prefix namespaces keys (default "otp").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) codeKey(identifier string) string {
	return s.prefix + ":code:" + NormalizeIdentifier(identifier)
}

func (s *RedisStore) verifiedKey(identifier string) string {
	return s.prefix + ":verified_" + NormalizeIdentifier(identifier)
}

// Issue stores a fresh code with TTL, overwriting any previous entry.
func (s *RedisStore) Issue(ctx context.Context, identifier string, purpose Purpose) (string, error) {
	code, err := GenerateCode(CodeLength)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.codeKey(identifier), string(purpose)+":"+code, TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return code, nil
}

// Verify runs the consume script; only one caller can observe a match.
func (s *RedisStore) Verify(ctx context.Context, identifier, code string) (Purpose, bool, error) {
	if code == "" {
		return "", false, nil
	}
	res, err := consumeCodeLua.Run(ctx, s.redis, []string{s.codeKey(identifier)}, code).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Purpose(res), true, nil
}

// MarkVerified sets verified_<identifier> for VerifiedTTL.
func (s *RedisStore) MarkVerified(ctx context.Context, identifier string) error {
	if err := s.redis.Set(ctx, s.verifiedKey(identifier), "1", VerifiedTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsVerified reports whether the flag exists.
func (s *RedisStore) IsVerified(ctx context.Context, identifier string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.verifiedKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// ClearVerified deletes the flag.
func (s *RedisStore) ClearVerified(ctx context.Context, identifier string) error {
	if err := s.redis.Del(ctx, s.verifiedKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
