// Package config loads the task-queue configuration surface.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the taskqueue binary's worker and
// mule subcommands.
// Environment variables are parsed from the TASKQUEUE_ prefix.
type Config struct {
	// ProcessName identifies this process in per-shard connection strings
	// (base_url + process_name + "_" + shard_key).
	ProcessName string `envconfig:"PROCESS_NAME" default:"taskqueue"`

	IsDatabaseSharding bool `envconfig:"IS_DATABASE_SHARDING" default:"false"`

	DBURL     string `envconfig:"DB_URL" default:""`
	DBTestURL string `envconfig:"DB_TEST_URL" default:""`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	WorkerGap               time.Duration `envconfig:"WORKER_GAP" default:"5s"`
	WorkerThreads           int           `envconfig:"WORKER_NUMBER_OF_THREADS" default:"1"`
	WorkerCleanupDays       int           `envconfig:"WORKER_CLEANUP_TIME_LIMITATION" default:"30"`
	RenewWorkerTimeRangeMin int           `envconfig:"RENEW_WORKER_TIME_RANGE" default:"15"`
	RenewWorkerGap          time.Duration `envconfig:"RENEW_WORKER_GAP" default:"30s"`

	JobsInterval                time.Duration `envconfig:"JOBS_INTERVAL" default:"5s"`
	RenewMuleWorkerTimeRangeMin int           `envconfig:"RENEW_MULE_WORKER_TIME_RANGE" default:"15"`
	RenewMuleWorkerGap          time.Duration `envconfig:"RENEW_MULE_WORKER_GAP" default:"30s"`
}

// RenewWorkerWindow returns the priority-queue lease staleness window.
func (c *Config) RenewWorkerWindow() time.Duration {
	return time.Duration(c.RenewWorkerTimeRangeMin) * time.Minute
}

// RenewMuleWorkerWindow returns the scheduled-queue lease staleness window.
func (c *Config) RenewMuleWorkerWindow() time.Duration {
	return time.Duration(c.RenewMuleWorkerTimeRangeMin) * time.Minute
}

// CleanupRetention returns how long a success row is kept before Cleanup prunes it.
func (c *Config) CleanupRetention() time.Duration {
	return time.Duration(c.WorkerCleanupDays) * 24 * time.Hour
}

// ResolveDefaults validates the loaded configuration.
func (c *Config) ResolveDefaults() error {
	if c.WorkerThreads <= 0 {
		c.WorkerThreads = 1
	}
	if c.IsDatabaseSharding && c.RedisAddr == "" {
		return fmt.Errorf("config: REDIS_ADDR is required when IS_DATABASE_SHARDING is set")
	}
	return nil
}

// New creates a new Config by parsing environment variables prefixed with TASKQUEUE_.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TASKQUEUE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Bool("is_database_sharding", cfg.IsDatabaseSharding).
		Dur("worker_gap", cfg.WorkerGap).
		Int("worker_threads", cfg.WorkerThreads).
		Dur("jobs_interval", cfg.JobsInterval).
		Str("db_url_present", presence(cfg.DBURL)).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config with conservative defaults and no sharding,
// suitable for unit tests that never touch Redis.
func NewForTesting() *Config {
	return &Config{
		ProcessName:                 "taskqueue-test",
		IsDatabaseSharding:          false,
		DBTestURL:                   "",
		WorkerGap:                   10 * time.Millisecond,
		WorkerThreads:               1,
		WorkerCleanupDays:           30,
		RenewWorkerTimeRangeMin:     15,
		RenewWorkerGap:              10 * time.Millisecond,
		JobsInterval:                10 * time.Millisecond,
		RenewMuleWorkerTimeRangeMin: 15,
		RenewMuleWorkerGap:          10 * time.Millisecond,
	}
}

func presence(s string) string {
	if s != "" {
		return "true"
	}
	return "false"
}
