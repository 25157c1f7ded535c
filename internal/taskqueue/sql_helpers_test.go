package taskqueue

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mycelian/taskqueue/internal/model"
)

func TestStatusPlaceholders(t *testing.T) {
	placeholders, args := statusPlaceholders([]model.Status{model.StatusNew, model.StatusFailed}, 1)
	assert.Equal(t, "$2,$3", placeholders)
	assert.Equal(t, []interface{}{"new", "failed"}, args)
}

func TestAppendFilter(t *testing.T) {
	assert.Equal(t, "SELECT 1", appendFilter("SELECT 1", ""))
	assert.Equal(t, "SELECT 1 AND (priority > 5)", appendFilter("SELECT 1", "priority > 5"))
}

func TestTruncateFailReason(t *testing.T) {
	assert.Equal(t, "", truncateFailReason(nil))

	short := errors.New("boom")
	assert.Equal(t, "boom", truncateFailReason(short))

	long := errors.New(strings.Repeat("x", model.MaxFailReasonBytes+100))
	got := truncateFailReason(long)
	assert.Len(t, got, model.MaxFailReasonBytes)
	assert.True(t, strings.HasSuffix(long.Error(), got))
}

func TestNullTimeRoundTrip(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)

	now := time.Now().UTC()
	nt := nullTime(&now)
	assert.True(t, nt.Valid)
	assert.Equal(t, now, nt.Time)

	back := timePtr(nt)
	assert.Equal(t, now, *back)

	assert.Nil(t, timePtr(sql.NullTime{}))
}
