package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported lifecycle stages.
const (
	StageTaskSubmitted Stage = "TASK_SUBMITTED"
	StageTaskStarted   Stage = "TASK_STARTED"
	StageTaskCompleted Stage = "TASK_COMPLETED"
	StageTaskFailed    Stage = "TASK_FAILED"
	StageTaskCanceled  Stage = "TASK_CANCELED"
)

// Terminal reports whether the stage ends a task.
func (s Stage) Terminal() bool {
	switch s {
	case StageTaskCompleted, StageTaskFailed, StageTaskCanceled:
		return true
	}
	return false
}

// Event captures one task lifecycle transition.
type Event struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which milestone occurred.
	Stage Stage `json:"stage"`
	// Router and Command name the operation the task runs.
	Router  string `json:"router"`
	Command string `json:"command"`
	// UserID is the submitting user.
	UserID string `json:"user_id,omitempty"`
	// Dur is the dispatch time for terminal stages.
	Dur time.Duration `json:"duration_ns,omitempty"`
	// Note carries low-volume context such as a failure message.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTaskSubmitted, StageTaskStarted, StageTaskCompleted, StageTaskFailed, StageTaskCanceled:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Attributes returns the routing metadata brokers can filter on without
// decoding the payload.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"task_id": e.TaskID,
		"stage":   string(e.Stage),
		"router":  e.Router,
		"command": e.Command,
	}
}
