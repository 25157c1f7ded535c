package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycelian/taskqueue/internal/model"
	"github.com/mycelian/taskqueue/internal/taskqueue"
)

func newMuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mule",
		Short: "Operate the scheduled queue (mule_task)",
	}
	cmd.AddCommand(newMuleStartCmd())
	cmd.AddCommand(newMuleRenewCmd())
	return cmd
}

func newMuleStartCmd() *cobra.Command {
	var interval time.Duration
	var statuses []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the worker loop popping and executing scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("mule")
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.JobsInterval = interval
			}

			dir, router := buildShardLayer(cfg)
			statusList := parseStatuses(statuses, model.StatusNew)

			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				w := taskqueue.NewWorker(taskqueue.WorkerConfig{
					Dispatcher: &taskqueue.ScheduledDispatcher{},
					Registry:   taskqueue.NewRegistry(),
					Directory:  dir,
					Router:     router,
					Logger:     log,
					Gap:        cfg.JobsInterval,
					FailStatus: model.StatusFailed,
				})
				w.Run(ctx, statusList, "", -1)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "query-interval", 0, "sleep between empty cycles (overrides TASKQUEUE_JOBS_INTERVAL)")
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "status label (repeatable); the scheduled pop predicate ignores it")
	return cmd
}

func newMuleRenewCmd() *cobra.Command {
	var gap time.Duration
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Reclaim orphaned scheduled-task leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("mule-renewer")
			if err != nil {
				return err
			}
			if gap > 0 {
				cfg.RenewMuleWorkerGap = gap
			}
			dir, router := buildShardLayer(cfg)
			return runUntilSignal(cmd.Context(), func(ctx context.Context) error {
				r := taskqueue.NewRenewer(taskqueue.RenewerConfig{
					Dispatcher: &taskqueue.ScheduledDispatcher{},
					Directory:  dir,
					Router:     router,
					Logger:     log,
					Window:     cfg.RenewMuleWorkerWindow(),
					Gap:        cfg.RenewMuleWorkerGap,
				})
				_, err := r.Run(ctx, -1)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&gap, "gap", 0, "sleep between renewal cycles (overrides TASKQUEUE_RENEW_MULE_WORKER_GAP)")
	return cmd
}
