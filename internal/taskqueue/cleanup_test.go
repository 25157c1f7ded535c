package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cleanupDispatcher struct {
	fakeDispatcher
	calls     int
	olderThan time.Time
	err       error
}

func (d *cleanupDispatcher) Cleanup(ctx context.Context, db *sql.DB, olderThan time.Time) error {
	d.calls++
	d.olderThan = olderThan
	return d.err
}

func TestCleanup_RunsPerShard(t *testing.T) {
	disp := &cleanupDispatcher{}
	db := newScratchDB(t)
	c := NewCleanup(CleanupConfig{
		Dispatcher: disp,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
	})

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	err := c.Run(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 1, disp.calls)
	assert.Equal(t, cutoff, disp.olderThan)
}

func TestCleanup_PropagatesFirstError(t *testing.T) {
	disp := &cleanupDispatcher{err: errors.New("disk full")}
	db := newScratchDB(t)
	c := NewCleanup(CleanupConfig{
		Dispatcher: disp,
		Directory:  newTestDirectory(),
		Router:     newTestRouter(db),
		Logger:     zerolog.Nop(),
	})

	err := c.Run(context.Background(), time.Now())
	require.Error(t, err)
}
