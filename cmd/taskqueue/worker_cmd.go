package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycelian/taskqueue/internal/model"
	"github.com/mycelian/taskqueue/internal/shard"
	"github.com/mycelian/taskqueue/internal/taskqueue"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Operate the priority queue (restfulpy_task)",
	}
	cmd.AddCommand(newWorkerStartCmd())
	cmd.AddCommand(newWorkerRenewCmd())
	cmd.AddCommand(newWorkerCleanupCmd())
	cmd.AddCommand(newWorkerRequeueCmd())
	return cmd
}

func newWorkerStartCmd() *cobra.Command {
	var gap time.Duration
	var statuses []string
	var threads int
	var filter string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start worker threads popping and executing priority tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("worker")
			if err != nil {
				return err
			}
			if gap > 0 {
				cfg.WorkerGap = gap
			}
			if threads > 0 {
				cfg.WorkerThreads = threads
			}

			dir, router := buildShardLayer(cfg)
			disp := &taskqueue.PriorityDispatcher{}
			registry := taskqueue.NewRegistry()
			statusList := parseStatuses(statuses, model.StatusNew)

			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				done := make(chan struct{}, cfg.WorkerThreads)
				for i := 0; i < cfg.WorkerThreads; i++ {
					go func() {
						defer func() { done <- struct{}{} }()
						w := taskqueue.NewWorker(taskqueue.WorkerConfig{
							Dispatcher: disp,
							Registry:   registry,
							Directory:  dir,
							Router:     router,
							Logger:     log,
							Gap:        cfg.WorkerGap,
							FailStatus: model.StatusNew,
						})
						w.Run(ctx, statusList, filter, -1)
					}()
				}
				for i := 0; i < cfg.WorkerThreads; i++ {
					<-done
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&gap, "gap", 0, "sleep between empty cycles (overrides TASKQUEUE_WORKER_GAP)")
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "eligible status to pop (repeatable, default new)")
	cmd.Flags().IntVar(&threads, "number-of-threads", 0, "worker goroutines to run (overrides TASKQUEUE_WORKER_NUMBER_OF_THREADS)")
	cmd.Flags().StringVar(&filter, "filter", "", "operator-trusted SQL boolean expression ANDed into the pop predicate")
	return cmd
}

func newWorkerRenewCmd() *cobra.Command {
	var gap time.Duration
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Reclaim orphaned priority-task leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("renewer")
			if err != nil {
				return err
			}
			if gap > 0 {
				cfg.RenewWorkerGap = gap
			}
			dir, router := buildShardLayer(cfg)
			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				r := taskqueue.NewRenewer(taskqueue.RenewerConfig{
					Dispatcher: &taskqueue.PriorityDispatcher{},
					Directory:  dir,
					Router:     router,
					Logger:     log,
					Window:     cfg.RenewWorkerWindow(),
					Gap:        cfg.RenewWorkerGap,
				})
				_, err := r.Run(ctx, -1)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&gap, "gap", 0, "sleep between renewal cycles (overrides TASKQUEUE_RENEW_WORKER_GAP)")
	return cmd
}

func newWorkerCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune successful priority tasks past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("cleanup")
			if err != nil {
				return err
			}
			if days > 0 {
				cfg.WorkerCleanupDays = days
			}
			dir, router := buildShardLayer(cfg)
			c := taskqueue.NewCleanup(taskqueue.CleanupConfig{
				Dispatcher: &taskqueue.PriorityDispatcher{},
				Directory:  dir,
				Router:     router,
				Logger:     log,
			})
			return c.Run(cmd.Context(), time.Now().Add(-cfg.CleanupRetention()))
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (overrides TASKQUEUE_WORKER_CLEANUP_TIME_LIMITATION)")
	return cmd
}

func newWorkerRequeueCmd() *cobra.Command {
	var shardKey string
	cmd := &cobra.Command{
		Use:   "requeue TASK_ID",
		Short: "Force an in-progress, failed or expired task back to new",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("requeue")
			if err != nil {
				return err
			}
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			_, router := buildShardLayer(cfg)
			db, err := router.Bind(context.Background(), shard.Key(shardKey))
			if err != nil {
				return err
			}
			disp := &taskqueue.PriorityDispatcher{}
			return disp.ResetStatus(cmd.Context(), db, id, nil)
		},
	}
	cmd.Flags().StringVar(&shardKey, "shard", string(shard.MasterKey), "shard key the task lives on")
	return cmd
}

func parseStatuses(raw []string, fallback model.Status) []model.Status {
	if len(raw) == 0 {
		return []model.Status{fallback}
	}
	out := make([]model.Status, len(raw))
	for i, s := range raw {
		out[i] = model.Status(s)
	}
	return out
}
