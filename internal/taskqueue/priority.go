package taskqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mycelian/taskqueue/internal/model"
)

// PriorityDispatcher implements the general priority queue (the
// "tasks" variant) against restfulpy_task: rows are ordered by
// priority DESC, created_at ASC, and every pop increments retries —
// including successful ones, since retries counts pops, not failures.
type PriorityDispatcher struct {
	// SubtypeTables lists joined-table-inheritance tables keyed by the
	// same id as restfulpy_task; Cleanup deletes from each before the
	// base table.
	SubtypeTables []string
}

const priorityTable = "restfulpy_task"

func (d *PriorityDispatcher) TableName() string { return priorityTable }

func (d *PriorityDispatcher) Pop(ctx context.Context, db *sql.DB, statuses []model.Status, filter string) (*model.Task, error) {
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusNew}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Kind: KindOperational, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := statusPlaceholders(statuses, 0)
	where := appendFilter(fmt.Sprintf("status IN (%s)", placeholders), filter)
	query := fmt.Sprintf(`
WITH cte AS (
	SELECT id FROM %s
	WHERE %s
	ORDER BY priority DESC, created_at ASC
	LIMIT 1
	FOR UPDATE
)
UPDATE %s t
SET status = 'in-progress', started_at = now(), retries = retries + 1
FROM cte
WHERE t.id = cte.id
RETURNING t.id`, priorityTable, where, priorityTable)

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoWork
		}
		return nil, &Error{Kind: KindOperational, Err: err}
	}

	task, err := d.loadTx(ctx, tx, id)
	if err != nil {
		return nil, &Error{Kind: KindOperational, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &Error{Kind: KindOperational, Err: err}
	}
	return task, nil
}

func (d *PriorityDispatcher) loadTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Task, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, created_at, type, status, priority, started_at, terminated_at, retries, fail_reason
FROM %s WHERE id = $1`, priorityTable), id)
	return scanPriorityTask(row)
}

func scanPriorityTask(row *sql.Row) (*model.Task, error) {
	var t model.Task
	var started, terminated sql.NullTime
	var failReason sql.NullString
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.Type, &t.Status, &t.Priority, &started, &terminated, &t.Retries, &failReason); err != nil {
		return nil, err
	}
	t.StartedAt = timePtr(started)
	t.TerminatedAt = timePtr(terminated)
	t.FailReason = failReason.String
	return &t, nil
}

func (d *PriorityDispatcher) WriteTerminal(ctx context.Context, tx *sql.Tx, task *model.Task) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status=$1, started_at=$2, terminated_at=$3, fail_reason=$4 WHERE id=$5`, priorityTable),
		string(task.Status), nullTime(task.StartedAt), nullTime(task.TerminatedAt), task.FailReason, task.ID)
	return err
}

func (d *PriorityDispatcher) ResetStatus(ctx context.Context, db *sql.DB, id int64, fromStatuses []model.Status) error {
	return resetStatus(ctx, db, priorityTable, id, fromStatuses)
}

func (d *PriorityDispatcher) Renew(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	return renewOldestStale(ctx, db, priorityTable, cutoff)
}

func (d *PriorityDispatcher) Cleanup(ctx context.Context, db *sql.DB, olderThan time.Time) error {
	return cleanupSuccessRows(ctx, db, priorityTable, d.SubtypeTables, olderThan)
}
