package tokenstore

import (
	"context"
	"errors"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "lifecycle"

// Redis keeps the credential under a single Redis key.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

var _ lifecycle.TokenStore = (*Redis)(nil)

// RedisOption customizes the Redis store.
type RedisOption func(*Redis)

// WithRedisKey overrides the key. Defaults to "lifecycle:" + lifecycle.CredentialKey.
func WithRedisKey(key string) RedisOption {
	return func(r *Redis) {
		if key != "" {
			r.key = key
		}
	}
}

// WithRedisTTL makes Redis drop the credential after ttl. Zero keeps it until
// it is cleared.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// NewRedis returns a store backed by client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		key:    defaultRedisPrefix + ":" + lifecycle.CredentialKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Key returns the Redis key in use.
func (r *Redis) Key() string {
	return r.key
}

func (r *Redis) Save(ctx context.Context, token string) error {
	if token == "" {
		return r.Clear(ctx)
	}
	return r.client.Set(ctx, r.key, token, r.ttl).Err()
}

func (r *Redis) Load(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
