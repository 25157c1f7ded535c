package config

import (
	"os"
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("TASKQUEUE_WORKER_GAP")
	_ = os.Unsetenv("TASKQUEUE_WORKER_NUMBER_OF_THREADS")
	_ = os.Unsetenv("TASKQUEUE_IS_DATABASE_SHARDING")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.WorkerGap != 5*time.Second || cfg.WorkerThreads != 1 || cfg.IsDatabaseSharding {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	_ = os.Setenv("TASKQUEUE_WORKER_GAP", "2s")
	defer func() { _ = os.Unsetenv("TASKQUEUE_WORKER_GAP") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.WorkerGap != 2*time.Second {
		t.Fatalf("worker gap env override failed, got %s", cfg.WorkerGap)
	}
}

func TestResolveDefaults_ShardingRequiresRedis(t *testing.T) {
	cfg := &Config{IsDatabaseSharding: true, RedisAddr: ""}
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatalf("expected error when sharding is enabled without a redis address")
	}
}

func TestResolveDefaults_ZeroThreadsDefaultsToOne(t *testing.T) {
	cfg := &Config{WorkerThreads: 0}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if cfg.WorkerThreads != 1 {
		t.Fatalf("expected worker threads to default to 1, got %d", cfg.WorkerThreads)
	}
}
