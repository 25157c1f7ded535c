package taskqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mycelian/taskqueue/internal/model"
)

// resetStatus implements the operator escape hatch shared by both
// table variants: force a row back to new, clearing started_at and
// terminated_at so it satisfies the same new-means-untouched
// invariant the Worker and Renewer maintain, provided its current
// status is one of fromStatuses.
func resetStatus(ctx context.Context, db *sql.DB, table string, id int64, fromStatuses []model.Status) error {
	if len(fromStatuses) == 0 {
		fromStatuses = []model.Status{model.StatusInProgress, model.StatusFailed, model.StatusExpired}
	}
	placeholders, args := statusPlaceholders(fromStatuses, 1)
	args = append([]interface{}{id}, args...)
	query := fmt.Sprintf(`
UPDATE %s SET status='new', started_at=NULL, terminated_at=NULL
WHERE id=$1 AND status IN (%s)`, table, placeholders)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	if n == 0 {
		return &Error{Kind: KindOperational, Err: fmt.Errorf("task %d not in a resettable status", id)}
	}
	return nil
}

// renewOldestStale reclaims the oldest in-progress row whose
// started_at is at or before cutoff, the orphaned-lease recovery the
// Renewer drives once per shard per cycle. Returns 0, nil when
// nothing is stale.
func renewOldestStale(ctx context.Context, db *sql.DB, table string, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`
WITH cte AS (
	SELECT id FROM %s
	WHERE status = 'in-progress' AND started_at <= $1
	ORDER BY started_at ASC
	LIMIT 1
	FOR UPDATE
)
UPDATE %s t
SET status = 'new', started_at = NULL, terminated_at = NULL
FROM cte
WHERE t.id = cte.id
RETURNING t.id`, table, table)

	var id int64
	if err := db.QueryRowContext(ctx, query, cutoff).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, &Error{Kind: KindOperational, Err: err}
	}
	return id, nil
}

// cleanupSuccessRows deletes every success row with started_at <
// olderThan. Subtype tables sharing the same id are deleted first,
// in order, so the base row delete never orphans a foreign key.
func cleanupSuccessRows(ctx context.Context, db *sql.DB, table string, subtypeTables []string, olderThan time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE status='success' AND started_at < $1`, table), olderThan)
	if err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return &Error{Kind: KindOperational, Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return tx.Commit()
	}

	placeholders, args := idPlaceholders(ids)
	for _, sub := range subtypeTables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE id IN (%s)`, sub, placeholders), args...); err != nil {
			return &Error{Kind: KindOperational, Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id IN (%s)`, table, placeholders), args...); err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Kind: KindOperational, Err: err}
	}
	return nil
}

func idPlaceholders(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return s, args
}
