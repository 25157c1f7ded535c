// Package model defines the persistent task record shared by the
// priority and scheduled task queues.
package model

import "time"

// Status is a task's position in the lifecycle state machine.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in-progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Task is one row of restfulpy_task (priority variant) or mule_task
// (scheduled variant). Priority and At/ExpiredAt are only meaningful
// for their respective variant; see package taskqueue for the
// dispatch rules that populate them.
type Task struct {
	ID           int64
	CreatedAt    time.Time
	Type         string
	Status       Status
	Priority     int
	At           *time.Time
	ExpiredAt    *time.Time
	StartedAt    *time.Time
	TerminatedAt *time.Time
	Retries      int
	FailReason   string
}

// MaxFailReasonBytes bounds fail_reason the way restfulpy_task.fail_reason
// (Unicode(4096)) does.
const MaxFailReasonBytes = 4096
