package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// Update is a status change written by the executor or a cancellation.
type Update struct {
	Status    facility.TaskStatus
	Result    json.RawMessage
	ResultURI string
}

// Store persists tasks. Implementations must reject any update that does
// not strictly advance the status (facility.ErrTaskTerminal once terminal,
// facility.ErrInvalidTransition otherwise) and must do so atomically.
type Store interface {
	CreateTask(ctx context.Context, t facility.Task) error
	UpdateTask(ctx context.Context, id string, u Update) (facility.Task, error)
	GetTask(ctx context.Context, id string) (facility.Task, error)
	ListTasks(ctx context.Context, userID string) ([]facility.Task, error)
}

// BlobStore writes large results and reads them back by URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, uri string) ([]byte, error)
}

// Publisher pushes task events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Enqueuer accepts work for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item QueueItem) error
}

// Queue provides enqueue/dequeue semantics for tasks.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem carries everything needed to execute a task away from the
// request that submitted it.
type QueueItem struct {
	TaskID    string
	User      *facility.User
	Resource  *facility.Resource
	Command   facility.TaskCommand
	Submitted time.Time
}
