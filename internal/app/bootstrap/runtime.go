package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Reference sequence backends.
const (
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
	SequenceMemory   = "memory"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSequencer picks the reference counter store. An explicit backend must
// be available; with none configured it prefers Postgres, then Redis, then memory.
// The Redis and memory counters seed each year from repo's confirmed count.
func BuildSequencer(backend string, db appointments.DB, redisClient *redis.Client, repo appointments.Repository, logger *logging.Logger) (appointments.Sequencer, string, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var seed appointments.SeedFunc
	if repo != nil {
		seed = repo.CountConfirmedInYear
	}

	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		switch {
		case db != nil:
			backend = SequencePostgres
		case redisClient != nil:
			backend = SequenceRedis
		default:
			backend = SequenceMemory
		}
	}

	switch backend {
	case SequencePostgres:
		if db == nil {
			return nil, "", fmt.Errorf("bootstrap: sequence backend %q requires DATABASE_URL", backend)
		}
		return appointments.NewPostgresSequencer(db), backend, nil
	case SequenceRedis:
		if redisClient == nil {
			return nil, "", fmt.Errorf("bootstrap: sequence backend %q requires REDIS_ADDR", backend)
		}
		return appointments.NewRedisSequencer(redisClient, seed), backend, nil
	case SequenceMemory:
		logger.Warn("reference ids are allocated in memory; restarts reseed from stored confirmations")
		return appointments.NewMemorySequencer(seed), backend, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown sequence backend %q", backend)
	}
}
