package taskqueue

import (
	"context"
	"database/sql"
	"sync"

	"github.com/mycelian/taskqueue/internal/model"
)

// Handler runs one task's side effects inside tx, the same
// transaction the Worker uses to write the terminal status — both
// commit atomically together, or neither does.
type Handler interface {
	Do(ctx context.Context, tx *sql.Tx, task *model.Task) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, tx *sql.Tx, task *model.Task) error

func (f HandlerFunc) Do(ctx context.Context, tx *sql.Tx, task *model.Task) error {
	return f(ctx, tx, task)
}

// MaxRetrier is implemented by task types that cap how many times
// they may be popped before the Worker gives up and records
// MaxRetriesExceeded instead of running Do again.
type MaxRetrier interface {
	MaxRetries() int
}

// Registry maps a task's Type column to the Handler that executes it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

func (r *Registry) Lookup(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}
