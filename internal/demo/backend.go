// Package demo is the reference backend. It serves every sub-domain from
// seeded in-memory data and a sandboxed directory on local disk, which is
// enough to exercise the whole API without a real facility behind it.
package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/adapter"
	"github.com/JakeFAU/iri-facility-api/internal/config"
	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/hash/sha256"
	"github.com/JakeFAU/iri-facility-api/internal/id/uuid"
)

// Name is the implementation identifier the backend registers under.
const Name = adapter.DefaultImplementation

var errNoTasks = errors.New("task manager not configured")

// Backend implements every sub-domain contract.
type Backend struct {
	cfg     config.DemoConfig
	logger  *zap.Logger
	tasks   facility.TaskManager
	hasher  *sha256.Hasher
	jobIDs  *uuid.Generator
	user    facility.User
	keys    map[string]struct{}
	sandbox string

	data *dataset

	mu   sync.Mutex
	jobs map[string]*jobRecord
}

// Factory returns an adapter.Factory building a Backend from cfg.
func Factory(cfg config.DemoConfig) adapter.Factory {
	return func(deps adapter.Deps) (any, error) {
		return New(cfg, deps)
	}
}

// New builds the backend and prepares its sandbox.
func New(cfg config.DemoConfig, deps adapter.Deps) (*Backend, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SandboxDir == "" {
		return nil, fmt.Errorf("demo: sandbox dir is required")
	}
	if cfg.OpsSizeLimit <= 0 {
		cfg.OpsSizeLimit = 5 * 1024 * 1024
	}
	sandbox, err := prepareSandbox(cfg.SandboxDir)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	b := &Backend{
		cfg:     cfg,
		logger:  logger.Named("demo"),
		tasks:   deps.Tasks,
		hasher:  sha256.New(),
		jobIDs:  uuid.New(),
		user:    facility.User{ID: demoUserID, Name: demoUserName},
		keys:    keys,
		sandbox: sandbox,
		data:    seed(cfg.Seed),
		jobs:    make(map[string]*jobRecord),
	}
	b.logger.Info("demo backend ready",
		zap.String("sandbox", sandbox),
		zap.Int64("seed", cfg.Seed),
		zap.Int("resources", len(b.data.resources)),
		zap.Int("events", len(b.data.events)),
		zap.Int("incidents", len(b.data.incidents)),
	)
	return b, nil
}

// Sandbox returns the absolute sandbox root.
func (b *Backend) Sandbox() string {
	return b.sandbox
}

// OpsSizeLimit is the largest payload view and download will return.
func (b *Backend) OpsSizeLimit() int64 {
	return b.cfg.OpsSizeLimit
}

// ResolveIdentity accepts any non-empty credential, or only the configured
// API keys when there are any.
func (b *Backend) ResolveIdentity(_ context.Context, credential, peerAddr string) (string, error) {
	if credential == "" {
		return "", facility.ErrUnauthorized
	}
	if len(b.keys) > 0 {
		if _, ok := b.keys[credential]; !ok {
			b.logger.Debug("unknown api key", zap.String("peer", peerAddr))
			return "", facility.ErrUnauthorized
		}
	}
	return b.user.ID, nil
}

// GetUser returns the demo user.
func (b *Backend) GetUser(_ context.Context, userID, _ string) (*facility.User, error) {
	if userID != b.user.ID {
		return nil, fmt.Errorf("%w: user %s", facility.ErrNotFound, userID)
	}
	u := b.user
	return &u, nil
}

// PutTask forwards to the task engine.
func (b *Backend) PutTask(ctx context.Context, user *facility.User, res *facility.Resource, cmd facility.TaskCommand) (string, error) {
	if b.tasks == nil {
		return "", errNoTasks
	}
	return b.tasks.PutTask(ctx, user, res, cmd)
}

// GetTask forwards to the task engine.
func (b *Backend) GetTask(ctx context.Context, user *facility.User, id string) (*facility.Task, error) {
	if b.tasks == nil {
		return nil, errNoTasks
	}
	return b.tasks.GetTask(ctx, user, id)
}

// GetTasks forwards to the task engine.
func (b *Backend) GetTasks(ctx context.Context, user *facility.User) ([]facility.Task, error) {
	if b.tasks == nil {
		return nil, errNoTasks
	}
	return b.tasks.GetTasks(ctx, user)
}

// CancelTask forwards to the task engine.
func (b *Backend) CancelTask(ctx context.Context, user *facility.User, id string) (*facility.Task, error) {
	if b.tasks == nil {
		return nil, errNoTasks
	}
	return b.tasks.CancelTask(ctx, user, id)
}

var (
	_ facility.StatusAdapter     = (*Backend)(nil)
	_ facility.AccountAdapter    = (*Backend)(nil)
	_ facility.ComputeAdapter    = (*Backend)(nil)
	_ facility.FilesystemAdapter = (*Backend)(nil)
	_ facility.TaskAdapter       = (*Backend)(nil)
	_ facility.FacilityAdapter   = (*Backend)(nil)
)
