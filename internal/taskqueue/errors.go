package taskqueue

import (
	"errors"
	"fmt"

	"github.com/mycelian/taskqueue/internal/model"
)

// Kind classifies a taskqueue failure the way §7 of the design
// groups them, so callers (Worker, Renewer, cmd/taskqueue) can decide
// whether to back off, retry, or escalate.
type Kind int

const (
	// KindNoWork means the Dispatcher found no eligible row; not an
	// error, drives backoff.
	KindNoWork Kind = iota
	// KindMaxRetriesExceeded means a subtype's max_retries policy
	// refused execution; the outcome is recorded as failed.
	KindMaxRetriesExceeded
	// KindOperational means the database was unreachable or the
	// operation failed transiently. The Renewer aborts its loop for a
	// supervisor restart; the Worker logs and continues.
	KindOperational
	// KindTaskBody means the task's Do implementation returned an
	// error; recorded on the row, never surfaced to the worker's caller.
	KindTaskBody
	// KindBookkeeping means writing the terminal status itself failed;
	// treated as data-integrity loss.
	KindBookkeeping
)

func (k Kind) String() string {
	switch k {
	case KindNoWork:
		return "no-work"
	case KindMaxRetriesExceeded:
		return "max-retries-exceeded"
	case KindOperational:
		return "operational"
	case KindTaskBody:
		return "task-body"
	case KindBookkeeping:
		return "bookkeeping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error wraps an underlying error with its Kind classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("taskqueue: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoWork is returned by Dispatcher.Pop when no row is eligible.
var ErrNoWork = &Error{Kind: KindNoWork, Err: fmt.Errorf("no task to pop")}

func errUnknownType(taskType string) error {
	return &Error{Kind: KindTaskBody, Err: fmt.Errorf("no handler registered for task type %q", taskType)}
}

func maxRetriesErr(task *model.Task) error {
	return &Error{Kind: KindMaxRetriesExceeded, Err: fmt.Errorf("task %d exceeded max retries at %d attempts", task.ID, task.Retries)}
}

// IsNoWork reports whether err is (or wraps) a KindNoWork *Error.
func IsNoWork(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindNoWork
	}
	return false
}
