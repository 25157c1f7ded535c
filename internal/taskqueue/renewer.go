package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/taskqueue/internal/shard"
)

// RenewerConfig wires a Renewer to one table variant.
type RenewerConfig struct {
	Dispatcher Dispatcher
	Directory  shard.Directory
	Router     *shard.Router
	Logger     zerolog.Logger

	// Window is how long a lease may sit in-progress before it's
	// considered orphaned and reclaimed.
	Window time.Duration
	// Gap is slept between renewal cycles.
	Gap time.Duration
}

// Renewer reclaims leases abandoned by a crashed or partitioned
// worker, one row per shard per cycle so a pathological backlog can't
// monopolize a connection.
type Renewer struct {
	cfg RenewerConfig
}

func NewRenewer(cfg RenewerConfig) *Renewer {
	return &Renewer{cfg: cfg}
}

// Run cycles until ctx is cancelled, or, in bounded test mode
// (tries >= 0), until the (tries+1)-th cycle that reclaims nothing;
// cycles that reclaim a lease do not reset the count. An
// operational error aborts the loop entirely so a supervisor can
// restart the process; any other error is logged and the loop
// continues.
func (r *Renewer) Run(ctx context.Context, tries int) (reclaimed []int64, err error) {
	remaining := tries
	for {
		select {
		case <-ctx.Done():
			return reclaimed, nil
		default:
		}

		cutoff := utcNow().Add(-r.cfg.Window)
		any := false

		shards, listErr := r.cfg.Directory.ListShards(ctx)
		if listErr != nil {
			return reclaimed, listErr
		}

		for _, key := range shards {
			db, bindErr := r.cfg.Router.Bind(ctx, key)
			if bindErr != nil {
				r.cfg.Logger.Error().Err(bindErr).Str("shard", string(key)).Msg("bind failed")
				continue
			}

			id, renewErr := r.cfg.Dispatcher.Renew(ctx, db, cutoff)
			if renewErr != nil {
				var te *Error
				if errors.As(renewErr, &te) && te.Kind == KindOperational {
					return reclaimed, renewErr
				}
				r.cfg.Logger.Error().Err(renewErr).Str("shard", string(key)).Msg("renew failed")
				continue
			}
			if id != 0 {
				any = true
				reclaimed = append(reclaimed, id)
				r.cfg.Logger.Info().Int64("task_id", id).Str("shard", string(key)).Msg("reclaimed orphaned lease")
			}
		}

		if !any && tries >= 0 {
			remaining--
			if remaining < 0 {
				return reclaimed, nil
			}
		}

		select {
		case <-ctx.Done():
			return reclaimed, nil
		case <-time.After(r.cfg.Gap):
		}
	}
}
