package taskqueue

import (
	"context"
	"database/sql"
	"time"

	"github.com/mycelian/taskqueue/internal/model"
)

// Dispatcher is the atomic "pop" primitive plus the row-level
// operations the Worker, Renewer and Cleanup loops drive it with. A
// Dispatcher is scoped to one table (restfulpy_task or mule_task); the
// two concrete implementations in this package encode the priority
// and scheduled selection predicates from §4.4.
type Dispatcher interface {
	// TableName identifies the backing table, used in log lines.
	TableName() string

	// Pop atomically selects one eligible row matching statuses (and,
	// if non-empty, filter — a caller-supplied SQL boolean expression),
	// transitions it to in-progress, and returns the fully loaded row.
	// Returns ErrNoWork when nothing is eligible.
	Pop(ctx context.Context, db *sql.DB, statuses []model.Status, filter string) (*model.Task, error)

	// WriteTerminal persists task's Status/StartedAt/TerminatedAt/FailReason
	// within tx, which the caller commits.
	WriteTerminal(ctx context.Context, tx *sql.Tx, task *model.Task) error

	// ResetStatus forces id back to new (started_at/terminated_at
	// cleared) provided its current status is one of fromStatuses. An
	// operator escape hatch generalizing restfulpy's reset_status.
	ResetStatus(ctx context.Context, db *sql.DB, id int64, fromStatuses []model.Status) error

	// Renew finds the oldest in-progress row with started_at <= cutoff,
	// resets it to new, and returns its id. Returns 0 with a nil error
	// when nothing is stale.
	Renew(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error)

	// Cleanup deletes every success row with started_at < olderThan,
	// including any registered subtype-table rows sharing the id.
	Cleanup(ctx context.Context, db *sql.DB, olderThan time.Time) error
}
