package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/progress"
)

type resolverFunc func(router string) (any, error)

func (f resolverFunc) Adapter(router string) (any, error) {
	return f(router)
}

func staticResolver(adapter any) Resolver {
	return resolverFunc(func(string) (any, error) { return adapter, nil })
}

// fakeFS overrides the filesystem calls the tests exercise. The embedded
// interface is nil, so anything else panics and surfaces as a failed task.
type fakeFS struct {
	facility.FilesystemAdapter

	mu      sync.Mutex
	dirs    map[string]bool
	started chan struct{}
	release chan struct{}
	calls   int
}

func newFakeFS() *fakeFS {
	return &fakeFS{dirs: map[string]bool{}}
}

func (f *fakeFS) Mkdir(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.MkdirRequest) (*facility.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.dirs[req.Path] = true
	return &facility.File{Name: req.Path, Type: "directory", Size: "0"}, nil
}

func (f *fakeFS) Ls(_ context.Context, _ *facility.Resource, _ *facility.User, req facility.LsRequest) ([]facility.File, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	names := make([]string, 0, len(f.dirs))
	for name := range f.dirs {
		if name == req.Path || req.Path == "/" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]facility.File, 0, len(names))
	for _, name := range names {
		out = append(out, facility.File{Name: name, Type: "directory", Size: "0"})
	}
	return out, nil
}

func (f *fakeFS) Remove(_ context.Context, _ *facility.Resource, _ *facility.User, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if !f.dirs[path] {
		return fmt.Errorf("%w: %s does not exist", facility.ErrNotFound, path)
	}
	delete(f.dirs, path)
	return nil
}

func (f *fakeFS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCompute struct {
	facility.ComputeAdapter
}

func (fakeCompute) GetJob(_ context.Context, _ *facility.Resource, _ *facility.User, jobID string, historical bool) (*facility.Job, error) {
	msg := "live"
	if historical {
		msg = "historical"
	}
	return &facility.Job{ID: jobID, Status: &facility.JobStatus{State: facility.JobActive, Message: msg}}, nil
}

func (fakeCompute) CancelJob(context.Context, *facility.Resource, *facility.User, string) (bool, error) {
	return true, nil
}

// memStore enforces the same transition rules as the real stores. With
// honorCtx set it fails writes on a finished ctx, as the postgres store does.
type memStore struct {
	mu       sync.Mutex
	tasks    map[string]facility.Task
	honorCtx bool
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]facility.Task{}}
}

func (s *memStore) CreateTask(ctx context.Context, t facility.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := s.tasks[t.ID]; ok {
		return errors.New("duplicate task")
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *memStore) UpdateTask(ctx context.Context, id string, u Update) (facility.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.honorCtx && ctx.Err() != nil {
		return facility.Task{}, ctx.Err()
	}
	cur, ok := s.tasks[id]
	switch {
	case !ok:
		return facility.Task{}, facility.ErrNotFound
	case cur.Status.Terminal():
		return facility.Task{}, facility.ErrTaskTerminal
	case !facility.CanTransition(cur.Status, u.Status):
		return facility.Task{}, facility.ErrInvalidTransition
	}
	cur.Status = u.Status
	if u.Result != nil {
		cur.Result = u.Result
	}
	if u.ResultURI != "" {
		cur.ResultURI = u.ResultURI
	}
	s.tasks[id] = cur
	return cur, nil
}

func (s *memStore) GetTask(_ context.Context, id string) (facility.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return facility.Task{}, facility.ErrNotFound
	}
	return t, nil
}

func (s *memStore) ListTasks(_ context.Context, userID string) ([]facility.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []facility.Task
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type blobMap struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (b *blobMap) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objs == nil {
		b.objs = map[string][]byte{}
	}
	uri := "mem://" + path
	b.objs[uri] = append([]byte(nil), data...)
	return uri, nil
}

func (b *blobMap) GetObject(_ context.Context, uri string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objs[uri]
	if !ok {
		return nil, facility.ErrNotFound
	}
	return data, nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("task-%03d", g.n), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingQueue struct {
	mu    sync.Mutex
	items []QueueItem
	err   error
	// expire ends the caller's ctx while Enqueue waits.
	expire context.CancelFunc
}

func (q *recordingQueue) Enqueue(ctx context.Context, item QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.expire != nil {
		q.expire()
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	}
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueItem(nil), q.items...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stages(taskID string) []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Stage
	for _, evt := range e.events {
		if evt.TaskID == taskID {
			out = append(out, evt.Stage)
		}
	}
	return out
}
