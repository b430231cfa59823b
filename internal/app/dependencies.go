package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-maplefresh/internal/config"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

// Dependencies holds the shared clients the api and worker binaries start from.
type Dependencies struct {
	Pool  *pgxpool.Pool
	Store *repo.Store
	Redis *redis.Client
}

// Options tunes how Connect instruments the clients.
type Options struct {
	AppName      string
	RedisMetrics bool
}

// Connect opens Postgres and Redis, retrying until cfg.StartupRetryMax elapses.
func Connect(ctx context.Context, cfg *config.Config, opts Options, logger zerolog.Logger) (*Dependencies, error) {
	pool, err := ConnectPostgres(ctx, cfg, opts.AppName, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := ConnectRedis(ctx, cfg, opts.RedisMetrics, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Dependencies{Pool: pool, Store: repo.NewStore(pool), Redis: rdb}, nil
}

// Close releases the pool and the redis client.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// ConnectPostgres builds a traced pgx pool and waits for the database to answer.
func ConnectPostgres(ctx context.Context, cfg *config.Config, appName string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Slow: 250 * time.Millisecond}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if appName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	err = retry(ctx, cfg.StartupRetryMax, logger.With().Str("dependency", "postgres").Logger(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ConnectRedis builds a traced redis client and waits for the server to answer.
func ConnectRedis(ctx context.Context, cfg *config.Config, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	err = retry(ctx, cfg.StartupRetryMax, logger.With().Str("dependency", "redis").Logger(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func retry(ctx context.Context, maxElapsed time.Duration, logger zerolog.Logger, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = maxElapsed
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("dependency not ready")
	})
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "rl:fw"})
}

// RunMigrations applies pending migrations; an up to date schema is not an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Migrate applies the embedded schema to databaseURL.
func Migrate(databaseURL string) error {
	m, err := repo.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := RunMigrations(m); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// TaskRedis converts the redis URL into asynq connection options.
func TaskRedis(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}
