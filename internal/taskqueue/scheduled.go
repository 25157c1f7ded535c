package taskqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mycelian/taskqueue/internal/model"
)

// ScheduledDispatcher implements the time-scheduled queue (the "mule"
// variant) against mule_task: a row is eligible once its at has
// passed, whether it is new, already in-progress (a stuck run being
// picked back up), or failed but still within its expiry window.
// Unlike PriorityDispatcher, popping a row never increments retries,
// and nothing else in this package increments it for mule_task.
// Pop ignores its statuses argument: eligibility is always the fixed
// predicate above. Failed rows past expired_at stop being selected;
// no code here sets them to expired.
type ScheduledDispatcher struct {
	SubtypeTables []string
}

const scheduledTable = "mule_task"

func (d *ScheduledDispatcher) TableName() string { return scheduledTable }

func (d *ScheduledDispatcher) Pop(ctx context.Context, db *sql.DB, statuses []model.Status, filter string) (*model.Task, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Kind: KindOperational, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	where := appendFilter(
		"at <= now() AND (status = 'in-progress' OR status = 'new' OR (status = 'failed' AND expired_at > now()))",
		filter,
	)
	query := fmt.Sprintf(`
WITH cte AS (
	SELECT id FROM %s
	WHERE %s
	ORDER BY id ASC
	LIMIT 1
	FOR UPDATE
)
UPDATE %s t
SET status = 'in-progress', started_at = now()
FROM cte
WHERE t.id = cte.id
RETURNING t.id`, scheduledTable, where, scheduledTable)

	var id int64
	if err := tx.QueryRowContext(ctx, query).Scan(&id); err != nil {
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

func (d *ScheduledDispatcher) loadTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Task, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, created_at, type, status, at, expired_at, started_at, terminated_at, retries, fail_reason
FROM %s WHERE id = $1`, scheduledTable), id)

	var t model.Task
	var at, expired, started, terminated sql.NullTime
	var failReason sql.NullString
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.Type, &t.Status, &at, &expired, &started, &terminated, &t.Retries, &failReason); err != nil {
		return nil, err
	}
	t.At = timePtr(at)
	t.ExpiredAt = timePtr(expired)
	t.StartedAt = timePtr(started)
	t.TerminatedAt = timePtr(terminated)
	t.FailReason = failReason.String
	return &t, nil
}

func (d *ScheduledDispatcher) WriteTerminal(ctx context.Context, tx *sql.Tx, task *model.Task) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status=$1, started_at=$2, terminated_at=$3, fail_reason=$4 WHERE id=$5`, scheduledTable),
		string(task.Status), nullTime(task.StartedAt), nullTime(task.TerminatedAt), task.FailReason, task.ID)
	return err
}

func (d *ScheduledDispatcher) ResetStatus(ctx context.Context, db *sql.DB, id int64, fromStatuses []model.Status) error {
	return resetStatus(ctx, db, scheduledTable, id, fromStatuses)
}

func (d *ScheduledDispatcher) Renew(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	return renewOldestStale(ctx, db, scheduledTable, cutoff)
}

func (d *ScheduledDispatcher) Cleanup(ctx context.Context, db *sql.DB, olderThan time.Time) error {
	return cleanupSuccessRows(ctx, db, scheduledTable, d.SubtypeTables, olderThan)
}
