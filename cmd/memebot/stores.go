package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-memes-bot/internal/config"
	"github.com/tbourn/go-memes-bot/internal/lock"
	"github.com/tbourn/go-memes-bot/internal/repo"
	"github.com/tbourn/go-memes-bot/internal/settings"
)

// storeResources is the opened settings store plus whatever must be closed
// on exit. Redis is non-nil when the store runs on Redis, so the locker can
// share the connection pool.
type storeResources struct {
	Store   settings.Store
	Redis   *redis.Client
	closers []func() error
}

func (r *storeResources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// openStore builds the configured backend and wraps it with the
// already-reposted cache.
func openStore(ctx context.Context, cfg config.Config) (*storeResources, error) {
	res := &storeResources{}
	def := cfg.Pipeline.DefaultThreshold

	switch cfg.Store.Backend {
	case config.StoreSQL:
		db, err := repo.Open(cfg.Store.DSN, repo.Options{Tracing: cfg.OTEL.Enabled, Quiet: cfg.LogLevel != "debug"})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, sqlDB.Close)
		if err := repo.AutoMigrate(db); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		res.Store = settings.NewSQLStore(db, def)

	case config.StoreRedis:
		rs, err := settings.NewRedisStore(ctx, cfg.Store.RedisURL, cfg.Store.KeyPrefix, def)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		res.closers = append(res.closers, rs.Close)
		res.Redis = rs.Client
		res.Store = rs

	case config.StoreMemory:
		res.Store = settings.NewMemStore(def)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.RepostedCacheSize > 0 {
		res.Store = settings.NewCached(res.Store, cfg.Store.RepostedCacheSize)
	}
	return res, nil
}

// openLocker builds the configured lock. A Redis locker reuses the store's
// client when there is one. The returned close func is never nil.
func openLocker(ctx context.Context, cfg config.Config, shared *redis.Client) (lock.Locker, func() error, error) {
	noClose := func() error { return nil }
	opts := lock.Options{
		TTL:        cfg.Lock.TTL,
		Retries:    cfg.Lock.Retries,
		RetryDelay: cfg.Lock.RetryDelay,
	}

	switch cfg.Lock.Backend {
	case config.LockNone:
		return lock.Noop{}, noClose, nil
	case config.LockMemory:
		return lock.NewMemLocker(opts), noClose, nil
	case config.LockRedis:
		if shared != nil {
			return lock.NewRedisLocker(shared, cfg.Store.KeyPrefix, opts), noClose, nil
		}
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return lock.NewRedisLocker(rdb, cfg.Store.KeyPrefix, opts), rdb.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
}
