package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-intake/internal/appointments"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// ConnectPostgres opens a pool when DATABASE_URL is set. Empty URL returns nil, nil.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse database url: %w", err)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// BuildRepository returns the Postgres repository when a pool exists, otherwise
// the in-memory one.
func BuildRepository(pool *pgxpool.Pool, cfg *appconfig.Config, logger *logging.Logger) appointments.Repository {
	if pool != nil {
		return appointments.NewPostgresRepository(pool)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && cfg.Env == "production" {
		logger.Error("DATABASE_URL not set in production; appointments will not survive a restart")
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
	}
	return appointments.NewInMemoryRepository()
}
