// Package server builds the facility API process: stores, task engine,
// adapter registry and HTTP server, and runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/iri-facility-api/internal/adapter"
	"github.com/JakeFAU/iri-facility-api/internal/api"
	"github.com/JakeFAU/iri-facility-api/internal/clock/system"
	"github.com/JakeFAU/iri-facility-api/internal/config"
	"github.com/JakeFAU/iri-facility-api/internal/demo"
	"github.com/JakeFAU/iri-facility-api/internal/id/uuid"
	"github.com/JakeFAU/iri-facility-api/internal/metrics"
	"github.com/JakeFAU/iri-facility-api/internal/progress"
	progresssinks "github.com/JakeFAU/iri-facility-api/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/iri-facility-api/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/iri-facility-api/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/iri-facility-api/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/iri-facility-api/internal/storage/gcs"
	localstorage "github.com/JakeFAU/iri-facility-api/internal/storage/local"
	memoryStorage "github.com/JakeFAU/iri-facility-api/internal/storage/memory"
	pgstore "github.com/JakeFAU/iri-facility-api/internal/storage/postgres"
	"github.com/JakeFAU/iri-facility-api/internal/task"
	"github.com/JakeFAU/iri-facility-api/internal/telemetry"
	"github.com/JakeFAU/iri-facility-api/internal/worker"
)

// Version is reported in the discovery document and the trace resource.
var Version = "dev"

// defaultEventTopic names the in-memory topic used when Pub/Sub is not configured.
const defaultEventTopic = "iri-task-events"

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	registry        *adapter.Registry
	tasks           *task.Service
	queue           *queueMemory.Queue
	pool            *worker.Pool
	store           task.Store
	pgStore         *pgstore.TaskStore
	blobs           task.BlobStore
	progressHub     *progress.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	tracerShutdown  func(context.Context) error
	registerer      prometheus.Registerer
}

// Build creates the application's dependencies. Anything already opened is
// released when a later step fails.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	return build(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, registerer: reg}
	if err := app.setup(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) setup(ctx context.Context) error {
	a.logger.Info("building application",
		zap.Int("port", a.cfg.Server.Port),
		zap.String("base_path", a.cfg.Server.BasePath),
		zap.String("task_mode", a.cfg.Tasks.Mode),
		zap.String("task_store", a.cfg.Tasks.Store),
		zap.String("storage_backend", a.cfg.Storage.Backend),
	)

	metrics.Init()
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Version:     Version,
		ProjectID:   a.cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	if err := setupTaskStore(ctx, a); err != nil {
		return err
	}
	if err := setupStorage(ctx, a); err != nil {
		return err
	}
	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		return err
	}
	events, err := setupProgress(ctx, a, publisher)
	if err != nil {
		return err
	}
	return setupTasks(a, events)
}

func setupTaskStore(ctx context.Context, app *App) error {
	if app.cfg.Tasks.Store != "postgres" {
		app.logger.Info("using in-memory task store")
		app.store = memoryStorage.NewTaskStore()
		return nil
	}
	pg, err := pgstore.NewTaskStore(ctx, pgstore.Config{
		DSN:             app.cfg.Database.DSN,
		Table:           app.cfg.Database.Table,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("task store init failed: %w", err)
	}
	app.pgStore = pg
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("task store migrate failed: %w", err)
	}
	app.store = pg
	app.logger.Info("using postgres task store", zap.String("table", app.cfg.Database.Table))
	return nil
}

func setupStorage(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		app.blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS result storage", zap.String("bucket", app.cfg.Storage.Bucket))
	case "local":
		app.blobs, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local result storage", zap.String("path", app.cfg.Storage.Local.BaseDir))
	default:
		app.logger.Info("using in-memory result storage")
		app.blobs = memoryStorage.NewBlobStore()
	}
	return nil
}

func setupPublisher(ctx context.Context, app *App) (task.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" {
		app.logger.Info("no Pub/Sub topic configured, task events stay in memory")
		return memorypublisher.New(1000), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher, app.cfg.PubSub.TopicName), nil
}

func setupProgress(ctx context.Context, app *App, publisher task.Publisher) (progress.Emitter, error) {
	if !app.cfg.Progress.Enabled {
		app.logger.Info("task events disabled")
		return nil, nil
	}
	var sinkList []progress.Sink
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("task_events")))
	}
	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return nil, err
	}
	sinkList = append(sinkList, promSink)
	topic := app.cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultEventTopic
	}
	pubSink, err := progresssinks.NewPublishSink(publisher, topic, app.logger.Named("task_events"))
	if err != nil {
		return nil, err
	}
	sinkList = append(sinkList, pubSink)

	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupTasks(app *App, events progress.Emitter) error {
	var queue task.Enqueuer
	if app.cfg.Tasks.Mode == config.TaskModeAsync {
		app.queue = queueMemory.NewQueue(app.cfg.Tasks.QueueDepth)
		queue = app.queue
	}
	wired, err := wire(app.cfg, app.logger, task.Options{
		Store:  app.store,
		Queue:  queue,
		Blobs:  app.blobs,
		Events: events,
		Config: task.Config{
			SpillBytes:  app.cfg.Tasks.ResultSpillBytes,
			SpillPrefix: app.cfg.Storage.Prefix,
		},
	}, app.ready)
	if err != nil {
		return err
	}
	app.registry = wired.registry
	app.tasks = wired.tasks
	app.apiServer = wired.api
	if app.queue != nil {
		app.pool = worker.NewPool(app.cfg.Tasks.Workers, app.queue, app.tasks, app.logger)
	}
	return nil
}

type wiring struct {
	registry *adapter.Registry
	tasks    *task.Service
	api      *api.Server
}

// wire builds the adapter registry, the task service and the HTTP layer on
// top of opts. The service runs inline when opts has no queue.
func wire(cfg config.Config, logger *zap.Logger, opts task.Options, ready func(context.Context) error) (*wiring, error) {
	registry := adapter.NewRegistry(adapter.Options{
		Configured:  cfg.Adapters,
		ShowMissing: cfg.ShowMissingRoutes,
		Deps:        adapter.Deps{Logger: logger},
		Logger:      logger.Named("adapters"),
	})
	registry.Register(demo.Name, demo.Factory(cfg.Demo))

	dispatcher := task.NewDispatcher(registry, nil, logger.Named("dispatcher"))
	opts.Dispatcher = dispatcher
	opts.IDs = uuid.New()
	opts.Clock = system.New()
	opts.Config.Inline = opts.Queue == nil
	opts.Logger = logger
	svc, err := task.NewService(opts)
	if err != nil {
		return nil, fmt.Errorf("task service init failed: %w", err)
	}
	registry.SetTasks(svc)

	bindings, err := registry.ResolveAll()
	if err != nil {
		return nil, fmt.Errorf("adapter resolution failed: %w", err)
	}
	for _, b := range bindings {
		logger.Info("sub-domain bound",
			zap.String("subdomain", string(b.SubDomain)),
			zap.String("implementation", b.Implementation),
			zap.Bool("configured", b.Configured),
			zap.Bool("hidden", b.Hidden),
		)
	}

	srv, err := api.NewServer(api.Options{
		Registry:       registry,
		Invoker:        dispatcher,
		BasePath:       cfg.Server.BasePath,
		RequestTimeout: cfg.Server.RequestTimeout,
		OpsSizeLimit:   cfg.Demo.OpsSizeLimit,
		Ready:          ready,
		Version:        Version,
		Logger:         logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return &wiring{registry: registry, tasks: svc, api: srv}, nil
}

// Describe builds only the HTTP layer, with in-memory task storage, so the
// route table can be inspected without opening any external connection.
func Describe(cfg config.Config, logger *zap.Logger) (*api.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wired, err := wire(cfg, logger, task.Options{Store: memoryStorage.NewTaskStore()}, nil)
	if err != nil {
		return nil, err
	}
	return wired.api, nil
}

// ready reports whether the task database answers.
func (a *App) ready(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the worker pool until ctx is canceled or the
// server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.pool != nil {
		// Workers stop once the queue is closed and drained, not on ctx.
		poolCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			a.logger.Info("worker pool started", zap.Int("workers", a.pool.Size()))
			a.pool.Run(poolCtx)
			a.logger.Info("worker pool drained")
			return nil
		})
	}
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if a.queue != nil {
			// No new submissions once Shutdown returns; close so workers drain.
			defer a.queue.Close()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	return runErr
}

// Close releases every dependency that was opened. It is safe on a
// partially built App.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
