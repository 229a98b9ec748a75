package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/task"
)

// TaskStore provides an in-memory task store for development and tests.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]facility.Task
	now   func() time.Time
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]facility.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask stores a new task.
func (s *TaskStore) CreateTask(_ context.Context, t facility.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

// UpdateTask applies u if it strictly advances the task's status.
func (s *TaskStore) UpdateTask(_ context.Context, id string, u task.Update) (facility.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return facility.Task{}, fmt.Errorf("task %s: %w", id, facility.ErrNotFound)
	}
	if t.Status.Terminal() {
		return facility.Task{}, fmt.Errorf("task %s is %s: %w", id, t.Status, facility.ErrTaskTerminal)
	}
	if !facility.CanTransition(t.Status, u.Status) {
		return facility.Task{}, fmt.Errorf("task %s %s -> %s: %w", id, t.Status, u.Status, facility.ErrInvalidTransition)
	}
	t.Status = u.Status
	if u.Result != nil {
		t.Result = append(json.RawMessage(nil), u.Result...)
	}
	if u.ResultURI != "" {
		t.ResultURI = u.ResultURI
	}
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	return clone(t), nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, id string) (facility.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return facility.Task{}, fmt.Errorf("task %s: %w", id, facility.ErrNotFound)
	}
	return clone(t), nil
}

// ListTasks returns the user's tasks ordered by creation time.
func (s *TaskStore) ListTasks(_ context.Context, userID string) ([]facility.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]facility.Task, 0)
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func clone(t facility.Task) facility.Task {
	if t.Command != nil {
		cmd := *t.Command
		if cmd.Args != nil {
			cmd.Args = copyValue(cmd.Args).(map[string]any)
		}
		t.Command = &cmd
	}
	if t.Result != nil {
		t.Result = append(json.RawMessage(nil), t.Result...)
	}
	return t
}

// copyValue deep-copies the maps and slices of canonical arguments.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = copyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = copyValue(child)
		}
		return out
	default:
		return v
	}
}
