package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisProfilePrefix = "fairshare:profile:"
	redisProfileIndex  = "fairshare:profiles"
)

// RedisProfileStore keeps profiles as JSON strings in Redis, one key per user.
// A set of user IDs backs Count.
type RedisProfileStore struct {
	client redis.UniversalClient
	ttl    time.Duration // 0 = no expiry
}

// NewRedisProfileStore creates a Redis-backed profile store.
func NewRedisProfileStore(client redis.UniversalClient, ttl time.Duration) *RedisProfileStore {
	return &RedisProfileStore{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisProfileStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	value, err := s.client.Get(ctx, redisProfilePrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	p := &Profile{}
	if err := json.Unmarshal(value, p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return p, nil
}

func (s *RedisProfileStore) Create(ctx context.Context, p *Profile) (*Profile, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisProfilePrefix+p.UserID, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		// Someone else created it first.
		return s.Get(ctx, p.UserID)
	}
	if err := s.client.SAdd(ctx, redisProfileIndex, p.UserID).Err(); err != nil {
		return nil, fmt.Errorf("redis sadd failed: %w", err)
	}
	return p.Clone(), nil
}

func (s *RedisProfileStore) Update(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	ok, err := s.client.SetXX(ctx, redisProfilePrefix+p.UserID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setxx failed: %w", err)
	}
	if !ok {
		return ErrProfileNotFound
	}
	return nil
}

func (s *RedisProfileStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, redisProfileIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard failed: %w", err)
	}
	return int(n), nil
}
