package revocation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding revoked references.
const DefaultRedisKey = "govkernel:revoked"

// RedisRegistry shares one revocation set across kernel replicas.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

// NewRedisRegistry connects lazily; the first lookup surfaces connection errors.
func NewRedisRegistry(addr, password string, db int, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRegistry{client: rdb, key: key}
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, ref string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, ref).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: redis lookup: %w", err)
	}
	return ok, nil
}

// Revoke adds refs to the shared set.
func (r *RedisRegistry) Revoke(ctx context.Context, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	members := make([]interface{}, len(refs))
	for i, ref := range refs {
		members[i] = ref
	}
	if err := r.client.SAdd(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("revocation: redis revoke: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
