package taskqueue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/taskqueue/internal/shard"
)

// CleanupConfig wires a Cleanup run to one table variant.
type CleanupConfig struct {
	Dispatcher Dispatcher
	Directory  shard.Directory
	Router     *shard.Router
	Logger     zerolog.Logger
}

// Cleanup prunes successful rows past a retention window. It is
// invoked by an operator, not run as a background loop.
type Cleanup struct {
	cfg CleanupConfig
}

func NewCleanup(cfg CleanupConfig) *Cleanup {
	return &Cleanup{cfg: cfg}
}

// Run deletes every success row older than olderThan, one commit per
// shard, continuing past a shard's failure so one bad shard doesn't
// block the rest.
func (c *Cleanup) Run(ctx context.Context, olderThan time.Time) error {
	shards, err := c.cfg.Directory.ListShards(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, key := range shards {
		db, err := c.cfg.Router.Bind(ctx, key)
		if err != nil {
			c.cfg.Logger.Error().Err(err).Str("shard", string(key)).Msg("bind failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := c.cfg.Dispatcher.Cleanup(ctx, db, olderThan); err != nil {
			c.cfg.Logger.Error().Err(err).Str("shard", string(key)).Msg("cleanup failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.cfg.Logger.Info().Str("shard", string(key)).Time("older_than", olderThan).Msg("cleanup complete")
	}
	return firstErr
}
