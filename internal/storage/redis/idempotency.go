// Package redis stores checkout idempotency keys in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "kart:idempotency:"
	pendingValue = "pending"
)

// IdempotencyStore reserves idempotency keys with SETNX and remembers the
// order created for each key until the TTL expires.
type IdempotencyStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewIdempotencyStore returns a store on client keeping keys for ttl.
func NewIdempotencyStore(client *goredis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return keyPrefix + key
}

// Reserve claims key. When the key was already claimed it returns the order
// id recorded for it, or an empty string while that request is still running.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error) {
	ok, err := s.client.SetNX(ctx, redisKey(key), pendingValue, s.ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "reserve idempotency key")
	}
	if ok {
		return "", true, nil
	}

	v, err := s.client.Get(ctx, redisKey(key)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		// Expired or released between SETNX and GET.
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "get idempotency key")
	case v == pendingValue:
		return "", false, nil
	default:
		return v, false, nil
	}
}

// Complete records the order created for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	if err := s.client.Set(ctx, redisKey(key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete idempotency key")
	}
	return nil
}

// Release drops key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Ping checks connectivity.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
