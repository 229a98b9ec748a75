package facility

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task states.
const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCanceled  TaskStatus = "canceled"
)

// Rank orders statuses: pending < active < terminal. Unknown values rank -1.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskActive:
		return 1
	case TaskCompleted, TaskFailed, TaskCanceled:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s.Rank() == 2
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s.Rank() >= 0
}

// CanTransition reports whether a task may move from one status to another.
// Rank must strictly increase, so terminal states are final.
func CanTransition(from, to TaskStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() > from.Rank()
}

// Task is the tracked execution of one TaskCommand.
type Task struct {
	ID        string          `json:"id"`
	UserID    string          `json:"-"`
	Status    TaskStatus      `json:"status"`
	Command   *TaskCommand    `json:"command"`
	Result    json.RawMessage `json:"result"`
	ResultURI string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
