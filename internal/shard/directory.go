// Package shard maps shard keys to database connection strings and
// caches live connection-pool handles per shard.
//
// The directory is an external collaborator (a key-value store); the
// router is the process-local cache built on top of it. Neither keeps
// an ambient "current shard" anywhere — callers thread the shard key
// through explicitly, per worker cycle.
package shard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Key identifies a shard. "master" is the synthetic key used when
// sharding is disabled.
type Key string

// MasterKey is the single implicit shard used when the sharding
// feature flag is off.
const MasterKey Key = "master"

// ErrDirectoryMiss is returned by Lookup when the key has no directory entry.
var ErrDirectoryMiss = errors.New("shard: directory miss")

// Directory enumerates shard keys and resolves each to a base
// connection string. Matches restfulpy's Redis-backed
// "sharding:<key>:connection-string" convention.
type Directory interface {
	// ListShards enumerates the current shard keys. The result is a
	// finite, non-restartable snapshot taken at call time.
	ListShards(ctx context.Context) ([]Key, error)
	// Lookup resolves key to its base connection string, or
	// ErrDirectoryMiss if no entry exists.
	Lookup(ctx context.Context, key Key) (string, error)
	// Register is used only by setup and tests.
	Register(ctx context.Context, key Key, baseURL string) error
}

// StaticDirectory is the non-sharded degenerate case: exactly one
// shard ("master") resolving to a fixed base URL.
type StaticDirectory struct {
	BaseURL string
}

// NewStaticDirectory returns a Directory with a single synthetic master shard.
func NewStaticDirectory(baseURL string) *StaticDirectory {
	return &StaticDirectory{BaseURL: baseURL}
}

func (s *StaticDirectory) ListShards(context.Context) ([]Key, error) {
	return []Key{MasterKey}, nil
}

func (s *StaticDirectory) Lookup(_ context.Context, key Key) (string, error) {
	if key != MasterKey {
		return "", ErrDirectoryMiss
	}
	return s.BaseURL, nil
}

func (s *StaticDirectory) Register(_ context.Context, key Key, baseURL string) error {
	if key != MasterKey {
		return fmt.Errorf("shard: static directory only knows the %q key", MasterKey)
	}
	s.BaseURL = baseURL
	return nil
}

// RedisDirectory resolves shard entries from Redis keys of the form
// "sharding:<key>:connection-string", enumerated with the glob
// "*:connection-string".
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory wraps an existing redis client.
func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

const (
	directoryKeyPrefix = "sharding:"
	directoryKeySuffix = ":connection-string"
)

func directoryKey(key Key) string {
	return directoryKeyPrefix + string(key) + directoryKeySuffix
}

func (d *RedisDirectory) ListShards(ctx context.Context) ([]Key, error) {
	var keys []Key
	iter := d.client.Scan(ctx, 0, "*"+directoryKeySuffix, 0).Iterator()
	for iter.Next(ctx) {
		raw := iter.Val()
		k := strings.TrimPrefix(raw, directoryKeyPrefix)
		k = strings.TrimSuffix(k, directoryKeySuffix)
		keys = append(keys, Key(k))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("shard: list shards: %w", err)
	}
	return keys, nil
}

func (d *RedisDirectory) Lookup(ctx context.Context, key Key) (string, error) {
	val, err := d.client.Get(ctx, directoryKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrDirectoryMiss
	}
	if err != nil {
		return "", fmt.Errorf("shard: lookup %q: %w", key, err)
	}
	return val, nil
}

func (d *RedisDirectory) Register(ctx context.Context, key Key, baseURL string) error {
	return d.client.Set(ctx, directoryKey(key), baseURL, 0).Err()
}
