package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/adapter"
	"github.com/JakeFAU/iri-facility-api/internal/auth"
	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/metrics"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultOpsSizeLimit   = 5 * 1024 * 1024
)

// Invoker runs a task command synchronously.
type Invoker interface {
	Invoke(ctx context.Context, res *facility.Resource, user *facility.User, cmd facility.TaskCommand) (any, error)
}

// Options configures a Server.
type Options struct {
	Registry *adapter.Registry
	// Invoker serves the synchronous filesystem and compute routes.
	Invoker        Invoker
	BasePath       string
	RequestTimeout time.Duration
	// OpsSizeLimit bounds view sizes and upload bodies.
	OpsSizeLimit int64
	// Ready reports whether downstream dependencies can take traffic.
	Ready   func(context.Context) error
	Title   string
	Version string
	Logger  *zap.Logger
}

// Server wires the sub-domain route groups to their bound backends.
type Server struct {
	router   *chi.Mux
	registry *adapter.Registry
	invoker  Invoker
	status   facility.StatusAdapter
	tasks    facility.TaskAdapter
	basePath string
	opsLimit int64
	ready    func(context.Context) error
	title    string
	version  string
	meta     map[string]routeMeta
	logger   *zap.Logger
}

// NewServer resolves every sub-domain through the registry and mounts its
// routes. It fails if any backend does not satisfy its contract.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("api: registry is required")
	}
	if opts.Invoker == nil {
		return nil, errors.New("api: invoker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	limit := opts.OpsSizeLimit
	if limit <= 0 {
		limit = defaultOpsSizeLimit
	}
	s := &Server{
		registry: opts.Registry,
		invoker:  opts.Invoker,
		basePath: strings.TrimRight(opts.BasePath, "/"),
		opsLimit: limit,
		ready:    opts.Ready,
		title:    opts.Title,
		version:  opts.Version,
		meta:     make(map[string]routeMeta),
		logger:   logger.Named("api"),
	}
	if s.title == "" {
		s.title = "IRI Facility API"
	}

	status, _, err := adapter.Resolve[facility.StatusAdapter](opts.Registry, facility.SubDomainStatus)
	if err != nil {
		return nil, err
	}
	s.status = status
	tasks, _, err := adapter.Resolve[facility.TaskAdapter](opts.Registry, facility.SubDomainTask)
	if err != nil {
		return nil, err
	}
	s.tasks = tasks

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	mounts := []struct {
		sub   facility.SubDomain
		mount func(*group)
	}{
		{facility.SubDomainStatus, s.mountStatus},
		{facility.SubDomainAccount, s.mountAccount},
		{facility.SubDomainCompute, s.mountCompute},
		{facility.SubDomainFilesystem, s.mountFilesystem},
		{facility.SubDomainTask, s.mountTasks},
		{facility.SubDomainFacility, s.mountFacility},
	}
	for _, m := range mounts {
		g, err := s.newGroup(m.sub)
		if err != nil {
			return nil, err
		}
		m.mount(g)
	}
	r.Get(s.basePath+"/openapi.json", s.openapi)
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			problem.Write(w, r, http.StatusServiceUnavailable, "Service not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// group registers the routes of one sub-domain under its prefix.
type group struct {
	s       *Server
	sub     facility.SubDomain
	binding adapter.Binding
	backend any
	authn   facility.Authenticator
	gate    func(http.Handler) http.Handler
}

func (s *Server) newGroup(sub facility.SubDomain) (*group, error) {
	backend, binding, err := s.registry.Instance(sub)
	if err != nil {
		return nil, err
	}
	authn, ok := backend.(facility.Authenticator)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend %T cannot authenticate", adapter.ErrContractNotSatisfied, sub, backend)
	}
	if binding.Hidden {
		s.logger.Info("route group hidden from discovery",
			zap.String("subdomain", string(sub)),
			zap.String("implementation", binding.Implementation),
		)
	}
	return &group{
		s:       s,
		sub:     sub,
		binding: binding,
		backend: backend,
		authn:   authn,
		gate:    auth.Gate(sub, authn, s.logger),
	}, nil
}

func (g *group) path(pattern string) string {
	return g.s.basePath + "/" + string(g.sub) + pattern
}

func (g *group) public(method, pattern string, h http.HandlerFunc) {
	g.handle(method, pattern, h, false)
}

func (g *group) protected(method, pattern string, h http.HandlerFunc) {
	g.handle(method, pattern, g.gate(h), true)
}

func (g *group) handle(method, pattern string, h http.Handler, protected bool) {
	full := g.path(pattern)
	g.s.router.Method(method, full, h)
	g.s.meta[method+" "+full] = routeMeta{
		tag:       string(g.sub),
		hidden:    g.binding.Hidden,
		protected: protected,
	}
}

// user loads the authenticated caller through the group's backend.
func (g *group) user(w http.ResponseWriter, r *http.Request) (*facility.User, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, "Unauthorized access")
		return nil, false
	}
	u, err := g.authn.GetUser(r.Context(), id.UserID, id.Credential)
	if err != nil || u == nil {
		if err != nil && !errors.Is(err, facility.ErrNotFound) {
			g.s.logger.Warn("user lookup failed", zap.String("user_id", id.UserID), zap.Error(err))
		}
		problem.Write(w, r, http.StatusNotFound, "User not found")
		return nil, false
	}
	return u, true
}

// resource resolves the {resource_id} path parameter through the status
// backend.
func (g *group) resource(w http.ResponseWriter, r *http.Request) (*facility.Resource, bool) {
	id := chi.URLParam(r, "resource_id")
	res, err := g.s.status.GetResource(r.Context(), id)
	if err != nil || res == nil {
		if err != nil && !errors.Is(err, facility.ErrNotFound) {
			g.s.logger.Warn("resource lookup failed", zap.String("resource_id", id), zap.Error(err))
		}
		problem.Write(w, r, http.StatusNotFound, "Resource not found")
		return nil, false
	}
	return res, true
}

// caller resolves both the user and the resource of a protected request.
func (g *group) caller(w http.ResponseWriter, r *http.Request) (*facility.User, *facility.Resource, bool) {
	u, ok := g.user(w, r)
	if !ok {
		return nil, nil, false
	}
	res, ok := g.resource(w, r)
	if !ok {
		return nil, nil, false
	}
	return u, res, true
}

// invoke runs a command synchronously and writes its value.
func (g *group) invoke(w http.ResponseWriter, r *http.Request, u *facility.User, res *facility.Resource, cmd facility.TaskCommand) {
	value, err := g.s.invoker.Invoke(r.Context(), res, u, cmd)
	if err != nil {
		g.s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// fail writes the problem for err, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if problem.Status(err) >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	problem.Error(w, r, err)
}

// requestLogger logs one line per request, keyed by chi's request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.Any("panic", rec),
					)
					problem.Write(w, r, http.StatusInternalServerError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// echoRequestID returns the request id to the client.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}
