package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/taskqueue/internal/model"
	"github.com/mycelian/taskqueue/internal/shard"
)

// fakeDispatcher hands out a fixed queue of tasks and records every
// terminal write, letting Worker's orchestration be tested without a
// real Postgres CTE/FOR UPDATE pop.
type fakeDispatcher struct {
	mu       sync.Mutex
	queue    []*model.Task
	terminal []model.Task
}

func (d *fakeDispatcher) TableName() string { return "fake_task" }

func (d *fakeDispatcher) Pop(ctx context.Context, db *sql.DB, statuses []model.Status, filter string) (*model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, ErrNoWork
	}
	task := d.queue[0]
	d.queue = d.queue[1:]
	return task, nil
}

func (d *fakeDispatcher) WriteTerminal(ctx context.Context, tx *sql.Tx, task *model.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminal = append(d.terminal, *task)
	return nil
}

func (d *fakeDispatcher) ResetStatus(ctx context.Context, db *sql.DB, id int64, fromStatuses []model.Status) error {
	return nil
}

func (d *fakeDispatcher) Renew(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (d *fakeDispatcher) Cleanup(ctx context.Context, db *sql.DB, olderThan time.Time) error {
	return nil
}

func newScratchDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestDirectory() shard.Directory {
	return shard.NewStaticDirectory("mem://")
}

func newTestRouter(db *sql.DB) *shard.Router {
	return shard.NewRouter(newTestDirectory(), "worker", func(string) (*sql.DB, error) { return db, nil })
}

func TestWorker_RunSucceedsAndRecordsSuccess(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 1, Type: "noop", Status: model.StatusInProgress}}}
	reg := NewRegistry()
	reg.Register("noop", HandlerFunc(func(context.Context, *sql.Tx, *model.Task) error { return nil }))

	db := newScratchDB(t)
	w := NewWorker(WorkerConfig{
		Dispatcher: disp,
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusNew,
	})

	results, stats := w.Run(context.Background(), []model.Status{model.StatusNew}, "", 1)

	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].TaskID)
	assert.Equal(t, model.StatusSuccess, results[0].Status)
	assert.Equal(t, 1, stats.Popped)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)

	require.Len(t, disp.terminal, 1)
	assert.Equal(t, model.StatusSuccess, disp.terminal[0].Status)
	assert.NotNil(t, disp.terminal[0].TerminatedAt)
}

func TestWorker_DoFailureResetsToNewForPriorityVariant(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 2, Type: "flaky", Status: model.StatusInProgress}}}
	reg := NewRegistry()
	reg.Register("flaky", HandlerFunc(func(context.Context, *sql.Tx, *model.Task) error {
		return errors.New("boom")
	}))

	db := newScratchDB(t)
	w := NewWorker(WorkerConfig{
		Dispatcher: disp,
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusNew,
	})

	results, stats := w.Run(context.Background(), []model.Status{model.StatusNew}, "", 1)

	require.Len(t, results, 1)
	assert.Equal(t, model.StatusNew, results[0].Status)
	assert.Equal(t, 1, stats.Failed)

	got := disp.terminal[0]
	assert.Equal(t, model.StatusNew, got.Status)
	assert.Nil(t, got.StartedAt, "resetting to new must clear started_at to satisfy the new-is-untouched invariant")
	assert.Nil(t, got.TerminatedAt)
	assert.Contains(t, got.FailReason, "boom")
}

func TestWorker_DoFailureRecordsFailedForScheduledVariant(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 3, Type: "flaky", Status: model.StatusInProgress}}}
	reg := NewRegistry()
	reg.Register("flaky", HandlerFunc(func(context.Context, *sql.Tx, *model.Task) error {
		return errors.New("timed out")
	}))

	db := newScratchDB(t)
	w := NewWorker(WorkerConfig{
		Dispatcher: disp,
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusFailed,
	})

	results, _ := w.Run(context.Background(), nil, "", 1)

	require.Len(t, results, 1)
	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.NotNil(t, disp.terminal[0].TerminatedAt)
}

func TestWorker_UnknownTaskTypeIsRefused(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 4, Type: "ghost", Status: model.StatusInProgress}}}
	reg := NewRegistry()

	db := newScratchDB(t)
	w := NewWorker(WorkerConfig{
		Dispatcher: disp,
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusNew,
	})

	results, _ := w.Run(context.Background(), nil, "", 1)

	require.Len(t, results, 1)
	assert.Equal(t, model.StatusNew, results[0].Status)
}

func TestWorker_MaxRetriesExceededRecordsFailed(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 5, Type: "capped", Status: model.StatusInProgress, Retries: 4}}}
	reg := NewRegistry()
	reg.Register("capped", retryingHandler{max: 3})

	db := newScratchDB(t)
	w := NewWorker(WorkerConfig{
		Dispatcher: disp,
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusNew,
	})

	results, _ := w.Run(context.Background(), nil, "", 1)

	require.Len(t, results, 1)
	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Contains(t, disp.terminal[0].FailReason, "max retries")
}

func TestWorker_BookkeepingFailureInvokesFatal(t *testing.T) {
	disp := &fakeDispatcher{queue: []*model.Task{{ID: 6, Type: "noop", Status: model.StatusInProgress}}}
	reg := NewRegistry()
	reg.Register("noop", HandlerFunc(func(context.Context, *sql.Tx, *model.Task) error { return nil }))

	db := newScratchDB(t)

	var fatalErr error
	w := NewWorker(WorkerConfig{
		Dispatcher: brokenWriteDispatcher{disp},
		Registry:   reg,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
		Gap:        time.Millisecond,
		FailStatus: model.StatusNew,
		Fatal:      func(err error) { fatalErr = err },
	})

	w.Run(context.Background(), nil, "", 1)

	require.Error(t, fatalErr)
	var te *Error
	require.True(t, errors.As(fatalErr, &te))
	assert.Equal(t, KindBookkeeping, te.Kind)
}

// brokenWriteDispatcher wraps fakeDispatcher but always fails the
// terminal write, simulating a bookkeeping failure after Do already ran.
type brokenWriteDispatcher struct {
	*fakeDispatcher
}

func (d brokenWriteDispatcher) WriteTerminal(ctx context.Context, tx *sql.Tx, task *model.Task) error {
	return errors.New("disk full")
}
