package taskqueue

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mycelian/taskqueue/internal/model"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("send-email", HandlerFunc(func(ctx context.Context, tx *sql.Tx, task *model.Task) error {
		called = true
		return nil
	}))

	h, ok := reg.Lookup("send-email")
	assert.True(t, ok)
	assert.NoError(t, h.Do(context.Background(), nil, &model.Task{}))
	assert.True(t, called)

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

type retryingHandler struct{ max int }

func (h retryingHandler) Do(context.Context, *sql.Tx, *model.Task) error { return nil }
func (h retryingHandler) MaxRetries() int                                { return h.max }

func TestLookupMaxRetrier(t *testing.T) {
	reg := NewRegistry()
	reg.Register("capped", retryingHandler{max: 3})
	reg.Register("uncapped", HandlerFunc(func(context.Context, *sql.Tx, *model.Task) error { return nil }))

	mr, ok := lookupMaxRetrier(reg, "capped")
	assert.True(t, ok)
	assert.Equal(t, 3, mr.MaxRetries())

	_, ok = lookupMaxRetrier(reg, "uncapped")
	assert.False(t, ok)

	_, ok = lookupMaxRetrier(reg, "missing")
	assert.False(t, ok)
}
