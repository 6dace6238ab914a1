// Package blacklist revokes identity tokens before their natural expiry.
// Revoked tokens live in Redis under a hashed key with a TTL equal to the
// token's remaining lifetime, so entries clean themselves up.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:"

// Store tracks revoked identity tokens.
type Store struct {
	client *redis.Client
}

// New creates a Store backed by the given Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Revoke blacklists the token for ttl. A non-positive ttl means the token
// has already expired and there is nothing to record.
func (s *Store) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyFor(token), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token has been blacklisted.
func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, err := s.client.Get(ctx, keyFor(token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return true, nil
}

// keyFor hashes the raw token so Redis never stores usable credentials.
// 16 hex chars of SHA-256 keep keys short while collisions stay negligible.
func keyFor(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])[:16]
}
