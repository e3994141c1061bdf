package main

import (
	"context"
	"fmt"
	"time"

	"github.com/marco/movieFinder/internal/config"
	"github.com/marco/movieFinder/internal/trending"
)

// openStore connects the counter backend named in the config.
func openStore(ctx context.Context, cfg config.TrendingConfig) (trending.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Backend {
	case config.BackendSQLite:
		return trending.OpenSQLite(cfg.SQLitePath)
	case config.BackendPostgres:
		return trending.OpenPostgres(ctx, cfg.PostgresDSN)
	case config.BackendMongo:
		client, err := trending.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := trending.NewMongoStore(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return trending.OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown trending backend %q", cfg.Backend)
	}
}
