package main

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/mycelian/taskqueue/internal/config"
	"github.com/mycelian/taskqueue/internal/shard"
)

// buildDirectory returns a Redis-backed Directory when sharding is
// enabled, or a single synthetic "master" shard pointing at DBURL
// otherwise.
func buildDirectory(cfg *config.Config) shard.Directory {
	if !cfg.IsDatabaseSharding {
		return shard.NewStaticDirectory(cfg.DBURL)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return shard.NewRedisDirectory(client)
}

// buildShardLayer wires the Directory and Router together so
// subcommands don't have to construct them separately; both are
// needed by Worker/Renewer/Cleanup (Directory for shard enumeration,
// Router for the per-shard connection cache).
func buildShardLayer(cfg *config.Config) (shard.Directory, *shard.Router) {
	dir := buildDirectory(cfg)
	open := func(dsn string) (*sql.DB, error) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	return dir, shard.NewRouter(dir, cfg.ProcessName, open)
}
