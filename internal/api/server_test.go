package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/iri-facility-api/internal/adapter"
	"github.com/JakeFAU/iri-facility-api/internal/clock/system"
	"github.com/JakeFAU/iri-facility-api/internal/config"
	"github.com/JakeFAU/iri-facility-api/internal/demo"
	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/id/uuid"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
	queueMemory "github.com/JakeFAU/iri-facility-api/internal/queue/memory"
	storageMemory "github.com/JakeFAU/iri-facility-api/internal/storage/memory"
	"github.com/JakeFAU/iri-facility-api/internal/task"
	"github.com/JakeFAU/iri-facility-api/internal/worker"
)

const basePath = "/api/current"

type harnessConfig struct {
	configured  map[string]string
	showMissing bool
	async       bool
	apiKeys     []string
	ready       func(context.Context) error
}

type harness struct {
	server *Server
}

// newHarness wires the demo backend, the dispatcher and the task service the
// same way the binary does.
func newHarness(t *testing.T, mutate ...func(*harnessConfig)) *harness {
	t.Helper()
	cfg := harnessConfig{}
	for _, m := range mutate {
		m(&cfg)
	}
	logger := zaptest.NewLogger(t)
	demoCfg := config.DemoConfig{
		SandboxDir:   t.TempDir(),
		Seed:         42,
		OpsSizeLimit: 1024,
		APIKeys:      cfg.apiKeys,
	}

	registry := adapter.NewRegistry(adapter.Options{
		Configured:  cfg.configured,
		ShowMissing: cfg.showMissing,
		Logger:      logger,
	})
	registry.Register(demo.Name, demo.Factory(demoCfg))
	registry.Register("alt", func(deps adapter.Deps) (any, error) {
		b, err := demo.New(demoCfg, deps)
		if err != nil {
			return nil, err
		}
		return &otherUser{Backend: b}, nil
	})

	dispatcher := task.NewDispatcher(registry, nil, logger)
	opts := task.Options{
		Store:      storageMemory.NewTaskStore(),
		Dispatcher: dispatcher,
		IDs:        uuid.New(),
		Clock:      system.New(),
		Config:     task.Config{Inline: !cfg.async},
		Logger:     logger,
	}
	var queue *queueMemory.Queue
	if cfg.async {
		queue = queueMemory.NewQueue(16)
		opts.Queue = queue
	}
	svc, err := task.NewService(opts)
	require.NoError(t, err)
	if cfg.async {
		ctx, cancel := context.WithCancel(context.Background())
		pool := worker.NewPool(2, queue, svc, logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			pool.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}

	registry.SetTasks(svc)
	_, err = registry.ResolveAll()
	require.NoError(t, err)

	srv, err := NewServer(Options{
		Registry:     registry,
		Invoker:      dispatcher,
		BasePath:     basePath,
		OpsSizeLimit: demoCfg.OpsSizeLimit,
		Ready:        cfg.ready,
		Version:      "test",
		Logger:       logger,
	})
	require.NoError(t, err)
	return &harness{server: srv}
}

// otherUser is the demo backend authenticating everyone as a different user.
type otherUser struct {
	*demo.Backend
}

func (o *otherUser) ResolveIdentity(context.Context, string, string) (string, error) {
	return "other", nil
}

func (o *otherUser) GetUser(_ context.Context, userID, _ string) (*facility.User, error) {
	return &facility.User{ID: userID, Name: "Other"}, nil
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, basePath+path, body)
	req.Header.Set("Authorization", "Bearer token")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) resourceID(t *testing.T, typ facility.ResourceType) string {
	t.Helper()
	rec := h.do(t, http.MethodGet, "/status/resources?resource_type="+string(typ), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resources := decode[[]facility.Resource](t, rec)
	require.NotEmpty(t, resources)
	return resources[0].ID
}

// await polls a task until it is terminal.
func (h *harness) await(t *testing.T, id string) facility.Task {
	t.Helper()
	var got facility.Task
	require.Eventually(t, func() bool {
		rec := h.do(t, http.MethodGet, "/task/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		got = decode[facility.Task](t, rec)
		return got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestHealthzSetsRequestID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) {
		c.ready = func(context.Context) error { return errors.New("database down") }
	})

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "database down")
}

func TestDiscoveryHidesUnconfiguredGroups(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) {
		c.configured = map[string]string{"status": demo.Name}
	})

	rec := h.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[Document](t, rec)
	require.Equal(t, openAPIVersion, doc.OpenAPI)
	require.Contains(t, doc.Paths, "/status/resources")
	require.NotContains(t, doc.Paths, "/filesystem/ls/{resource_id}")
	require.NotContains(t, doc.Paths, "/task")
	require.Equal(t, []Tag{{Name: "status"}}, doc.Tags)

	// Hidden routes still serve requests.
	storage := h.resourceID(t, facility.ResourceTypeStorage)
	rec = h.do(t, http.MethodGet, "/filesystem/ls/"+storage+"?path=.", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "test.txt")

	var hidden int
	for _, rt := range h.server.Routes(true) {
		if rt.Hidden {
			hidden++
			require.NotEqual(t, "status", rt.Tag)
		}
	}
	require.Positive(t, hidden)
}

func TestShowMissingRoutesExposesEveryGroup(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) { c.showMissing = true })

	doc := h.server.Document(false)
	for _, path := range []string{
		"/status/resources",
		"/account/projects",
		"/compute/job/{resource_id}",
		"/filesystem/async/mkdir/{resource_id}",
		"/task/{task_id}",
		"/facility",
	} {
		require.Contains(t, doc.Paths, path)
	}
	projects := doc.Paths["/account/projects"]["get"]
	require.Equal(t, "get_account_projects", projects.OperationID)
	require.NotEmpty(t, projects.Security)
	require.Empty(t, doc.Paths["/account/capabilities"]["get"].Security)
	require.Equal(t, []ServerURL{{URL: basePath}}, doc.Servers)
}

func TestProtectedRoutesRequireCredential(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) { c.apiKeys = []string{"secret"} })

	req := httptest.NewRequest(http.MethodGet, basePath+"/account/projects", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	p := decode[problem.Problem](t, rec)
	require.Equal(t, "Unauthorized access", p.Detail)

	rec = h.do(t, http.MethodGet, "/account/projects", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "token not among the configured keys")

	rec = h.do(t, http.MethodGet, "/account/projects", nil, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.Project](t, rec), 2)

	rec = h.do(t, http.MethodGet, "/account/capabilities", nil, "Authorization", "")
	require.Equal(t, http.StatusOK, rec.Code, "capabilities are public")
}

func TestStatusRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/status/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.Resource](t, rec), 6)

	rec = h.do(t, http.MethodGet, "/status/resources?limit=0&modified_since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decode[problem.Problem](t, rec)
	require.Len(t, p.InvalidParams, 2)

	rec = h.do(t, http.MethodGet, "/status/resources/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/status/incidents?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incidents := decode[[]facility.Incident](t, rec)
	require.Len(t, incidents, 1)

	rec = h.do(t, http.MethodGet, "/status/incidents/"+incidents[0].ID+"/events?limit=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.Event](t, rec), len(incidents[0].EventIDs))

	rec = h.do(t, http.MethodGet, "/status/incidents?type=sometimes", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountAndFacilityRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/account/projects", nil)
	projects := decode[[]facility.Project](t, rec)
	rec = h.do(t, http.MethodGet, "/account/projects/"+projects[0].ID+"/project_allocations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	allocs := decode[[]facility.ProjectAllocation](t, rec)
	require.Len(t, allocs, 4)

	rec = h.do(t, http.MethodGet, "/account/projects/"+projects[0].ID+"/project_allocations/"+allocs[0].ID+"/user_allocations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.UserAllocation](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/account/projects/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Project not found", decode[problem.Problem](t, rec).Detail)

	rec = h.do(t, http.MethodGet, "/facility", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f := decode[facility.Facility](t, rec)
	rec = h.do(t, http.MethodGet, "/facility/sites/"+f.SiteIDs[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFilesystemSyncOperations(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	storage := h.resourceID(t, facility.ResourceTypeStorage)

	rec := h.do(t, http.MethodGet, "/filesystem/head/"+storage+"?path=test.txt&bytes=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	head := decode[struct {
		Output facility.FileContent `json:"output"`
	}](t, rec)
	require.Equal(t, "hello", head.Output.Content)

	rec = h.do(t, http.MethodGet, "/filesystem/head/"+storage+"?path=test.txt&bytes=5&lines=1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/filesystem/view/"+storage+"?path=test.txt&size=4096", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "size above the ops limit")

	rec = h.do(t, http.MethodGet, "/filesystem/ls/"+storage, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "path is required")

	rec = h.do(t, http.MethodPost, "/filesystem/upload/"+storage+"?path=up.txt", strings.NewReader("uploaded"))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/filesystem/download/"+storage+"?path=up.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "uploaded", rec.Body.String())

	rec = h.do(t, http.MethodPost, "/filesystem/upload/"+storage+"?path=big.txt", strings.NewReader(strings.Repeat("x", 2048)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = h.do(t, http.MethodPost, "/filesystem/mv/"+storage, strings.NewReader(`{"sourcePath":"up.txt","targetPath":"moved.txt"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/filesystem/rm/"+storage+"?path=moved.txt", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/filesystem/rm/"+storage+"?path=moved.txt", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/filesystem/ls/missing-resource?path=.", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Resource not found", decode[problem.Problem](t, rec).Detail)
}

func TestFilesystemAsyncChain(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) { c.async = true })
	storage := h.resourceID(t, facility.ResourceTypeStorage)

	rec := h.do(t, http.MethodPost, "/filesystem/async/mkdir/"+storage, strings.NewReader(`{"path":"t1","parent":true}`))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ref := decode[TaskRef](t, rec)
	require.Equal(t, "http://example.com"+basePath+"/task/"+ref.TaskID, ref.TaskURI)

	mkdir := h.await(t, ref.TaskID)
	require.Equal(t, facility.TaskCompleted, mkdir.Status)
	require.Equal(t, "mkdir", mkdir.Command.Command)

	rec = h.do(t, http.MethodGet, "/filesystem/async/ls/"+storage+"?path=.&showHidden=false", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	ls := h.await(t, decode[TaskRef](t, rec).TaskID)
	require.Equal(t, facility.TaskCompleted, ls.Status)
	require.Contains(t, string(ls.Result), `"name":"t1"`)
	require.Equal(t, false, ls.Command.Args["show_hidden"])

	rec = h.do(t, http.MethodGet, "/task", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.Task](t, rec), 2)
}

func TestFilesystemAsyncFailureIsData(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	storage := h.resourceID(t, facility.ResourceTypeStorage)

	rec := h.do(t, http.MethodDelete, "/filesystem/async/rm/"+storage+"?path=does-not-exist", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, "submission succeeds even though the operation will fail")

	got := h.await(t, decode[TaskRef](t, rec).TaskID)
	require.Equal(t, facility.TaskFailed, got.Status)
	var msg string
	require.NoError(t, json.Unmarshal(got.Result, &msg))
	require.Contains(t, msg, "no such file or directory")

	rec = h.do(t, http.MethodDelete, "/task/"+got.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "terminal tasks cannot be canceled")
}

func TestTasksAreScopedToTheirOwner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *harnessConfig) {
		c.configured = map[string]string{"task": "alt"}
	})
	storage := h.resourceID(t, facility.ResourceTypeStorage)

	rec := h.do(t, http.MethodGet, "/filesystem/async/checksum/"+storage+"?path=test.txt", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[TaskRef](t, rec).TaskID

	rec = h.do(t, http.MethodGet, "/task/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/task", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]facility.Task](t, rec))
}

func TestComputeRoutes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	compute := h.resourceID(t, facility.ResourceTypeCompute)

	rec := h.do(t, http.MethodPost, "/compute/job/"+compute, strings.NewReader(`{"executable":"/bin/hostname","resources":{"nodeCount":1}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[facility.Job](t, rec)
	require.Equal(t, facility.JobNew, job.Status.State)
	require.Equal(t, 1, *job.JobSpec.Resources.NodeCount)

	rec = h.do(t, http.MethodPost, "/compute/job/"+compute, strings.NewReader(`{"arguments":["x"]}`))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, "executable is required")

	rec = h.do(t, http.MethodPost, "/compute/status/"+compute, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]facility.Job](t, rec), 1)

	rec = h.do(t, http.MethodDelete, "/compute/cancel/"+compute+"/"+job.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/compute/status/"+compute+"/"+job.ID+"?historical=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, facility.JobCanceled, decode[facility.Job](t, rec).Status.State)

	rec = h.do(t, http.MethodDelete, "/compute/cancel/"+compute+"/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/facility", "get_facility"},
		{http.MethodGet, "/status/resources/{resource_id}", "get_status_resources_by_resource_id"},
		{http.MethodDelete, "/task/{task_id}", "delete_task_by_task_id"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, operationID(tt.method, tt.path))
	}
}
