package taskqueue

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/mycelian/taskqueue/internal/model"
	"github.com/mycelian/taskqueue/internal/shard"
)

// Outcome pairs a finished task's id with the terminal status the
// Worker recorded for it, the minimal shape run() hands back for
// testing.
type Outcome struct {
	TaskID int64
	Status model.Status
}

// Stats tallies what a Worker has done across its run, primarily so
// callers such as tests don't have to count Outcomes themselves.
type Stats struct {
	CyclesRun int
	Popped    int
	Succeeded int
	Failed    int
}

// WorkerConfig wires a Worker to one table variant and its pacing.
type WorkerConfig struct {
	Dispatcher Dispatcher
	Registry   *Registry
	Directory  shard.Directory
	Router     *shard.Router
	Logger     zerolog.Logger

	// Gap bounds the empty-poll backoff: cycles that find no work sleep
	// with exponentially increasing delay capped at Gap, resetting to
	// the backoff's initial interval the moment a cycle finds work.
	Gap time.Duration

	// FailStatus is the status recorded when Do fails or no handler is
	// registered for the task's type:
	// model.StatusNew for the priority variant (natural retry) or
	// model.StatusFailed for the scheduled variant.
	FailStatus model.Status

	// Fatal is invoked when a terminal write or its commit fails — a
	// bookkeeping failure. Do's side effects share that transaction and
	// are rolled back with it. The
	// default panics, crashing the process for a supervisor restart,
	// since Go has no way to kill a single worker goroutine in place.
	Fatal func(err error)
}

// Worker drives the pop -> execute -> commit cycle for one table
// variant across every shard it's handed.
type Worker struct {
	cfg WorkerConfig
	bo  backoff.BackOff
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Fatal == nil {
		cfg.Fatal = func(err error) { panic(err) }
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.Gap / 10
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 10 * time.Millisecond
	}
	eb.MaxInterval = cfg.Gap
	eb.MaxElapsedTime = 0
	eb.RandomizationFactor = 0
	eb.Reset()
	return &Worker{cfg: cfg, bo: eb}
}

// Run drives cycles until ctx is cancelled, or, in bounded test mode
// (tries >= 0), until the (tries+1)-th empty cycle: tries=0 returns on
// the first cycle that finds no work. Cycles that find work do not
// reset the count.
// statuses restricts which rows are eligible to pop; filter is an
// optional operator-supplied SQL boolean expression ANDed into the
// pop predicate. The shard set is re-snapshotted every cycle so a
// shard added or removed mid-run takes effect on the next pass.
func (w *Worker) Run(ctx context.Context, statuses []model.Status, filter string, tries int) ([]Outcome, Stats) {
	var results []Outcome
	var stats Stats
	remaining := tries

	for {
		select {
		case <-ctx.Done():
			return results, stats
		default:
		}

		stats.CyclesRun++
		anyWork := false

		shards, err := w.cfg.Directory.ListShards(ctx)
		if err != nil {
			w.cfg.Logger.Error().Err(err).Msg("list shards failed")
			select {
			case <-ctx.Done():
				return results, stats
			case <-time.After(w.cfg.Gap):
			}
			continue
		}

		for _, key := range shards {
			db, err := w.cfg.Router.Bind(ctx, key)
			if err != nil {
				w.cfg.Logger.Error().Err(err).Str("shard", string(key)).Msg("bind failed")
				continue
			}

			task, err := w.cfg.Dispatcher.Pop(ctx, db, statuses, filter)
			if err != nil {
				if IsNoWork(err) {
					continue
				}
				w.cfg.Logger.Error().Err(err).Str("shard", string(key)).Msg("pop failed")
				continue
			}

			anyWork = true
			stats.Popped++
			outcome := w.execute(ctx, db, key, task)
			results = append(results, outcome)
			if outcome.Status == model.StatusSuccess {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
		}

		if !anyWork && tries >= 0 {
			remaining--
			if remaining < 0 {
				return results, stats
			}
		}

		var sleep time.Duration
		if anyWork {
			w.bo.Reset()
			sleep = 0
		} else {
			sleep = w.bo.NextBackOff()
		}

		select {
		case <-ctx.Done():
			return results, stats
		case <-time.After(sleep):
		}
	}
}

// execute runs one task's Do under the same transaction that writes
// its terminal status, so both commit atomically together. A failure
// writing the terminal status after Do already ran is a bookkeeping
// failure and escalates via Fatal.
func (w *Worker) execute(ctx context.Context, db *sql.DB, key shard.Key, task *model.Task) Outcome {
	if mr, ok := lookupMaxRetrier(w.cfg.Registry, task.Type); ok && task.Retries > mr.MaxRetries() {
		w.finish(ctx, db, key, task, model.StatusFailed, maxRetriesErr(task))
		return Outcome{TaskID: task.ID, Status: model.StatusFailed}
	}

	handler, ok := w.cfg.Registry.Lookup(task.Type)
	if !ok {
		w.finish(ctx, db, key, task, w.cfg.FailStatus, errUnknownType(task.Type))
		return Outcome{TaskID: task.ID, Status: w.cfg.FailStatus}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Int64("task_id", task.ID).Msg("begin execution transaction failed")
		return Outcome{TaskID: task.ID, Status: task.Status}
	}

	doErr := handler.Do(ctx, tx, task)

	var final model.Status
	if doErr == nil {
		final = model.StatusSuccess
		task.FailReason = ""
	} else {
		final = w.cfg.FailStatus
		prior := task.FailReason
		task.FailReason = truncateFailReason(doErr)
		if task.FailReason != prior {
			w.cfg.Logger.Error().
				Int64("task_id", task.ID).
				Str("shard", string(key)).
				Str("fail_reason", task.FailReason).
				Msg("task execution failed")
		}
	}
	task.Status = final
	now := utcNow()
	task.TerminatedAt = &now
	if final == model.StatusNew {
		// Natural priority-variant retry: the row goes back to looking
		// untouched so the next pop treats it like any other new task.
		task.StartedAt = nil
		task.TerminatedAt = nil
	}

	if err := w.cfg.Dispatcher.WriteTerminal(ctx, tx, task); err != nil {
		_ = tx.Rollback()
		w.cfg.Fatal(&Error{Kind: KindBookkeeping, Err: err})
		return Outcome{TaskID: task.ID, Status: task.Status}
	}
	if err := tx.Commit(); err != nil {
		w.cfg.Fatal(&Error{Kind: KindBookkeeping, Err: err})
		return Outcome{TaskID: task.ID, Status: task.Status}
	}

	return Outcome{TaskID: task.ID, Status: final}
}

// finish writes a terminal status chosen before Do ever ran (refused
// execution: unknown type, max retries exceeded) without opening a
// Do transaction.
func (w *Worker) finish(ctx context.Context, db *sql.DB, key shard.Key, task *model.Task, status model.Status, cause error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Int64("task_id", task.ID).Msg("begin terminal transaction failed")
		return
	}
	task.Status = status
	task.FailReason = truncateFailReason(cause)
	now := utcNow()
	task.TerminatedAt = &now
	if status == model.StatusNew {
		task.StartedAt = nil
		task.TerminatedAt = nil
	}
	if err := w.cfg.Dispatcher.WriteTerminal(ctx, tx, task); err != nil {
		_ = tx.Rollback()
		w.cfg.Fatal(&Error{Kind: KindBookkeeping, Err: err})
		return
	}
	if err := tx.Commit(); err != nil {
		w.cfg.Fatal(&Error{Kind: KindBookkeeping, Err: err})
		return
	}
	w.cfg.Logger.Error().Int64("task_id", task.ID).Str("shard", string(key)).Err(cause).Msg("execution refused")
}

func lookupMaxRetrier(reg *Registry, taskType string) (MaxRetrier, bool) {
	h, ok := reg.Lookup(taskType)
	if !ok {
		return nil, false
	}
	mr, ok := h.(MaxRetrier)
	return mr, ok
}
