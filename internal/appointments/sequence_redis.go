package appointments

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSequencer allocates reference counters with INCR so several API
// instances share one sequence.
type RedisSequencer struct {
	client    *redis.Client
	seed      SeedFunc
	keyPrefix string
}

// NewRedisSequencer creates a Redis-backed sequencer.
func NewRedisSequencer(client *redis.Client, seed SeedFunc) *RedisSequencer {
	if client == nil {
		panic("appointments: redis client required")
	}
	return &RedisSequencer{client: client, seed: seed, keyPrefix: "appointments:refseq"}
}

func (s *RedisSequencer) key(year int) string {
	return fmt.Sprintf("%s:%d", s.keyPrefix, year)
}

func (s *RedisSequencer) Next(ctx context.Context, year int) (int64, error) {
	key := s.key(year)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("appointments: redis exists: %w", err)
	}
	if exists == 0 && s.seed != nil {
		seeded, err := s.seed(ctx, year)
		if err != nil {
			return 0, err
		}
		// SETNX so a concurrent instance that seeded first wins.
		if err := s.client.SetNX(ctx, key, seeded, 0).Err(); err != nil {
			return 0, fmt.Errorf("appointments: redis seed: %w", err)
		}
	}
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("appointments: redis incr: %w", err)
	}
	return n, nil
}
