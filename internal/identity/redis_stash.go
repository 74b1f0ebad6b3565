package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// stashKeyPrefix namespaces stash entries in redis.
const stashKeyPrefix = "cfp:stash:"

// RedisStash stores stash entries in redis with a TTL, so pending
// registrations survive process restarts and multi-instance deployments.
type RedisStash struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStash creates a redis-backed stash.
func NewRedisStash(client *redis.Client, ttl time.Duration) *RedisStash {
	if ttl <= 0 {
		ttl = DefaultStashTTL
	}
	return &RedisStash{client: client, ttl: ttl}
}

// Put stores an assertion under the given key. RawExtra is dropped by the
// Assertion JSON encoding, so large provider payloads never reach redis.
func (s *RedisStash) Put(ctx context.Context, key string, assertion Assertion) error {
	payload, errEncode := json.Marshal(assertion)
	if errEncode != nil {
		return fmt.Errorf("stash: encode: %w", errEncode)
	}
	if errSet := s.client.Set(ctx, stashKeyPrefix+key, payload, s.ttl).Err(); errSet != nil {
		return fmt.Errorf("stash: set: %w", errSet)
	}
	return nil
}

// Get returns the stashed assertion for a key, if present.
func (s *RedisStash) Get(ctx context.Context, key string) (Assertion, bool, error) {
	payload, errGet := s.client.Get(ctx, stashKeyPrefix+key).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return Assertion{}, false, nil
		}
		return Assertion{}, false, fmt.Errorf("stash: get: %w", errGet)
	}
	var assertion Assertion
	if errDecode := json.Unmarshal(payload, &assertion); errDecode != nil {
		return Assertion{}, false, fmt.Errorf("stash: decode: %w", errDecode)
	}
	return assertion, true, nil
}

// Delete removes a stash entry.
func (s *RedisStash) Delete(ctx context.Context, key string) error {
	if errDel := s.client.Del(ctx, stashKeyPrefix+key).Err(); errDel != nil {
		return fmt.Errorf("stash: delete: %w", errDel)
	}
	return nil
}
