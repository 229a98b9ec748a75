package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/metrics"
	"github.com/JakeFAU/iri-facility-api/internal/progress"
)

// Config controls how the Service executes tasks.
type Config struct {
	// Inline dispatches inside PutTask instead of enqueuing.
	Inline bool
	// SpillBytes moves results larger than this to the blob store. Zero
	// keeps every result in the task store.
	SpillBytes int
	// SpillPrefix is the blob path prefix for spilled results.
	SpillPrefix string
}

// Options carries the Service collaborators.
type Options struct {
	Store      Store
	Dispatcher *Dispatcher
	Queue      Enqueuer
	Blobs      BlobStore
	IDs        IDGenerator
	Clock      Clock
	Events     progress.Emitter
	Config     Config
	Logger     *zap.Logger
}

// Service is the task manager: it accepts submissions, runs them through
// the dispatcher and answers polls.
type Service struct {
	store      Store
	dispatcher *Dispatcher
	queue      Enqueuer
	blobs      BlobStore
	ids        IDGenerator
	clock      Clock
	events     progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

var _ facility.TaskManager = (*Service)(nil)

// NewService validates opts and returns a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("task service: store is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("task service: dispatcher is required")
	case opts.IDs == nil:
		return nil, errors.New("task service: id generator is required")
	case opts.Clock == nil:
		return nil, errors.New("task service: clock is required")
	case !opts.Config.Inline && opts.Queue == nil:
		return nil, errors.New("task service: queue is required in async mode")
	}
	if opts.Config.SpillPrefix == "" {
		opts.Config.SpillPrefix = "tasks"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		queue:      opts.Queue,
		blobs:      opts.Blobs,
		ids:        opts.IDs,
		clock:      opts.Clock,
		events:     opts.Events,
		cfg:        opts.Config,
		logger:     logger.Named("tasks"),
	}, nil
}

// PutTask stores cmd as a pending task and schedules it. In inline mode the
// task has reached a terminal state by the time PutTask returns.
func (s *Service) PutTask(ctx context.Context, user *facility.User, res *facility.Resource, cmd facility.TaskCommand) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("%w: task submission requires a user", facility.ErrInvalidArgument)
	}
	canonical, err := cmd.Canonical()
	if err != nil {
		return "", err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	now := s.clock.Now()
	t := facility.Task{
		ID:        id,
		UserID:    user.ID,
		Status:    facility.TaskPending,
		Command:   &canonical,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	router, command := s.labels(canonical)
	metrics.ObserveTask(router, command, string(facility.TaskPending))
	s.emit(progress.StageTaskSubmitted, id, user.ID, canonical, 0, "")
	s.logger.Debug("task submitted",
		zap.String("task_id", id),
		zap.String("router", canonical.Router),
		zap.String("command", canonical.Command),
	)

	item := QueueItem{TaskID: id, User: user, Resource: res, Command: canonical, Submitted: now}
	if s.cfg.Inline {
		s.Execute(ctx, item)
		return id, nil
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		metrics.ObserveQueueRejection()
		s.finish(ctx, item, failure(fmt.Sprintf("enqueue task: %v", err)), 0)
		return "", fmt.Errorf("enqueue task %s: %w", id, err)
	}
	return id, nil
}

// Execute runs one task to a terminal state. A task canceled before it
// starts is skipped; one canceled while running keeps its canceled state
// and the late outcome is dropped. Store writes outlive ctx, so a canceled
// ctx fails the backend call but still records the outcome.
func (s *Service) Execute(ctx context.Context, item QueueItem) {
	if _, err := s.store.UpdateTask(context.WithoutCancel(ctx), item.TaskID, Update{Status: facility.TaskActive}); err != nil {
		s.logger.Info("task not started",
			zap.String("task_id", item.TaskID),
			zap.Error(err),
		)
		return
	}
	router, command := s.labels(item.Command)
	metrics.ObserveTask(router, command, string(facility.TaskActive))
	userID := ""
	if item.User != nil {
		userID = item.User.ID
	}
	s.emit(progress.StageTaskStarted, item.TaskID, userID, item.Command, 0, "")

	start := s.clock.Now()
	out := s.dispatcher.Dispatch(ctx, item.TaskID, item.Resource, item.User, item.Command)
	s.finish(ctx, item, out, s.clock.Now().Sub(start))
}

func (s *Service) finish(ctx context.Context, item QueueItem, out Outcome, dur time.Duration) {
	ctx = context.WithoutCancel(ctx)
	update := Update{Status: out.Status, Result: out.Result}
	if s.blobs != nil && s.cfg.SpillBytes > 0 && len(out.Result) > s.cfg.SpillBytes {
		path := fmt.Sprintf("%s/%s/result.json", s.cfg.SpillPrefix, item.TaskID)
		uri, err := s.blobs.PutObject(ctx, path, "application/json", out.Result)
		if err != nil {
			s.logger.Warn("spill task result failed; keeping it inline",
				zap.String("task_id", item.TaskID),
				zap.Int("bytes", len(out.Result)),
				zap.Error(err),
			)
		} else {
			update.Result = nil
			update.ResultURI = uri
		}
	}
	if _, err := s.store.UpdateTask(ctx, item.TaskID, update); err != nil {
		if errors.Is(err, facility.ErrTaskTerminal) {
			s.logger.Info("task outcome dropped; task already terminal",
				zap.String("task_id", item.TaskID),
				zap.String("outcome", string(out.Status)),
			)
			return
		}
		s.logger.Error("record task outcome failed",
			zap.String("task_id", item.TaskID),
			zap.Error(err),
		)
		return
	}
	router, command := s.labels(item.Command)
	metrics.ObserveTask(router, command, string(out.Status))
	userID := ""
	if item.User != nil {
		userID = item.User.ID
	}
	stage := progress.StageTaskCompleted
	note := ""
	if out.Failed() {
		stage = progress.StageTaskFailed
		note = string(out.Result)
	}
	s.emit(stage, item.TaskID, userID, item.Command, dur, note)
}

// GetTask returns the caller's task. Tasks owned by someone else are
// reported as not found.
func (s *Service) GetTask(ctx context.Context, user *facility.User, id string) (*facility.Task, error) {
	t, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	s.hydrate(ctx, &t)
	return &t, nil
}

// GetTasks lists the caller's tasks.
func (s *Service) GetTasks(ctx context.Context, user *facility.User) ([]facility.Task, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", facility.ErrInvalidArgument)
	}
	tasks, err := s.store.ListTasks(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for i := range tasks {
		s.hydrate(ctx, &tasks[i])
	}
	return tasks, nil
}

// CancelTask marks a pending or active task canceled. Work already running
// in a backend is not interrupted.
func (s *Service) CancelTask(ctx context.Context, user *facility.User, id string) (*facility.Task, error) {
	if _, err := s.owned(ctx, user, id); err != nil {
		return nil, err
	}
	t, err := s.store.UpdateTask(ctx, id, Update{Status: facility.TaskCanceled})
	if err != nil {
		return nil, fmt.Errorf("cancel task %s: %w", id, err)
	}
	var cmd facility.TaskCommand
	if t.Command != nil {
		cmd = *t.Command
	}
	router, command := s.labels(cmd)
	metrics.ObserveTask(router, command, string(facility.TaskCanceled))
	s.emit(progress.StageTaskCanceled, id, user.ID, cmd, 0, "")
	return &t, nil
}

func (s *Service) owned(ctx context.Context, user *facility.User, id string) (facility.Task, error) {
	if user == nil {
		return facility.Task{}, fmt.Errorf("%w: user is required", facility.ErrInvalidArgument)
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return facility.Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	if t.UserID != user.ID {
		return facility.Task{}, fmt.Errorf("task %s: %w", id, facility.ErrNotFound)
	}
	return t, nil
}

func (s *Service) hydrate(ctx context.Context, t *facility.Task) {
	if t.ResultURI == "" || t.Result != nil || s.blobs == nil {
		return
	}
	data, err := s.blobs.GetObject(ctx, t.ResultURI)
	if err != nil {
		s.logger.Warn("load spilled task result failed",
			zap.String("task_id", t.ID),
			zap.String("uri", t.ResultURI),
			zap.Error(err),
		)
		return
	}
	t.Result = data
}

func (s *Service) labels(cmd facility.TaskCommand) (string, string) {
	if !s.dispatcher.Known(cmd.Router, cmd.Command) {
		return "unknown", "unknown"
	}
	return cmd.Router, cmd.Command
}

func (s *Service) emit(stage progress.Stage, taskID, userID string, cmd facility.TaskCommand, dur time.Duration, note string) {
	if s.events == nil {
		return
	}
	s.events.Emit(progress.Event{
		TaskID:  taskID,
		TS:      s.clock.Now().UTC(),
		Stage:   stage,
		Router:  cmd.Router,
		Command: cmd.Command,
		UserID:  userID,
		Dur:     dur,
		Note:    note,
	})
}
