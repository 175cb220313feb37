package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/cache"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/config"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/database"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/marketdata"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/repository"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/store"
)

// snapshotRetention bounds how long a shared quote outlives its TTL in
// Redis, where it only serves stale display reads.
const snapshotRetention = 24 * time.Hour

// openDatabase connects to the configured SQL database. It returns nil for
// the memory driver.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if cfg.Database.Driver == "memory" {
		return nil, nil
	}

	dialect, err := database.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.Path
	if dialect == database.Postgres {
		dsn = cfg.GetDatabaseURL()
	}

	return database.Open(ctx, dialect, dsn, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxConns,
		MaxIdleConns:    cfg.Database.MaxConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
}

func newStore(db *database.DB) store.Store {
	if db == nil {
		return store.NewMemoryStore()
	}
	return repository.NewStore(db)
}

func newProvider(cfg *config.Config) (marketdata.Provider, error) {
	md := cfg.MarketData
	switch md.Provider {
	case "http":
		return marketdata.NewHTTPProvider(marketdata.HTTPProviderConfig{
			BaseURL:   md.BaseURL,
			APIKey:    md.APIKey,
			Timeout:   md.FetchTimeout,
			RateLimit: md.RateLimit,
			Burst:     md.Burst,
		}), nil
	case "alpaca":
		return marketdata.NewAlpacaProvider(marketdata.AlpacaConfig{
			APIKey:    md.APIKey,
			APISecret: md.APISecret,
			BaseURL:   md.BaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported market data provider: %q", md.Provider)
	}
}

func newRedisStore(ctx context.Context, cfg *config.Config) (*redis.Client, *cache.RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rs := cache.NewRedisStore(client, snapshotRetention)
	if err := rs.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, rs, nil
}
