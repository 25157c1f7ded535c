package taskqueue

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mycelian/taskqueue/internal/model"
)

// statusPlaceholders renders "$2,$3,..." for an IN clause starting at
// argOffset+1, and returns the matching []interface{} args.
func statusPlaceholders(statuses []model.Status, argOffset int) (string, []interface{}) {
	parts := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		parts[i] = fmt.Sprintf("$%d", argOffset+i+1)
		args[i] = string(s)
	}
	return strings.Join(parts, ","), args
}

// appendFilter appends an operator-supplied SQL boolean expression to
// a WHERE clause being built. filter is trusted operator input (the
// CLI's --filter flag), mirroring restfulpy's raw text(filters) use —
// never user-supplied request data.
func appendFilter(query, filter string) string {
	if filter == "" {
		return query
	}
	return query + " AND (" + filter + ")"
}

func truncateFailReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) <= model.MaxFailReasonBytes {
		return s
	}
	return s[len(s)-model.MaxFailReasonBytes:]
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func utcNow() time.Time { return time.Now().UTC() }
