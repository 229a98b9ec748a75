// Package adapter binds each API sub-domain to a backend implementation.
//
// Backends register a Factory under an implementation identifier. At startup
// the Registry looks up the identifier configured for each sub-domain (or
// the default), builds the backend once, checks that it satisfies the
// sub-domain contract, and hands the same instance to every caller for the
// rest of the process lifetime.
package adapter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// DefaultImplementation is used for sub-domains with no configured backend.
const DefaultImplementation = "demo"

var (
	// ErrUnknownImplementation reports an identifier with no registered factory.
	ErrUnknownImplementation = errors.New("unknown adapter implementation")
	// ErrContractNotSatisfied reports a backend missing contract operations.
	ErrContractNotSatisfied = errors.New("adapter does not satisfy contract")
)

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Logger *zap.Logger
	Tasks  facility.TaskManager
}

// Factory builds a backend. A factory is called at most once per registry.
type Factory func(deps Deps) (any, error)

// Binding records how a sub-domain was resolved.
type Binding struct {
	SubDomain      facility.SubDomain
	Implementation string
	Configured     bool
	Hidden         bool
}

// Options configures a Registry.
type Options struct {
	// Configured maps sub-domain names to implementation identifiers.
	Configured map[string]string
	// ShowMissing exposes groups that fall back to the default backend.
	ShowMissing bool
	Deps        Deps
	Logger      *zap.Logger
}

// Registry resolves sub-domains to backend instances.
type Registry struct {
	mu         sync.Mutex
	factories  map[string]Factory
	built      map[string]any
	bindings   map[facility.SubDomain]Binding
	instances  map[facility.SubDomain]any
	configured map[string]string
	show       bool
	deps       Deps
	logger     *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	configured := make(map[string]string, len(opts.Configured))
	for k, v := range opts.Configured {
		configured[k] = v
	}
	return &Registry{
		factories:  make(map[string]Factory),
		built:      make(map[string]any),
		bindings:   make(map[facility.SubDomain]Binding),
		instances:  make(map[facility.SubDomain]any),
		configured: configured,
		show:       opts.ShowMissing,
		deps:       opts.Deps,
		logger:     logger,
	}
}

// SetTasks injects the task manager after construction. The task engine
// needs the registry to dispatch, and backends need the engine to serve the
// task sub-domain, so one side has to be wired late.
func (r *Registry) SetTasks(tasks facility.TaskManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps.Tasks = tasks
}

// Register adds a factory under an implementation identifier.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Implementations lists registered identifiers.
func (r *Registry) Implementations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind decides which implementation serves sub and whether its routes are
// hidden from discovery. It does not build anything.
func (r *Registry) Bind(sub facility.SubDomain) (Binding, error) {
	if !sub.Valid() {
		return Binding{}, fmt.Errorf("bind %q: unknown sub-domain", sub)
	}
	impl, ok := r.configured[string(sub)]
	b := Binding{SubDomain: sub, Implementation: impl, Configured: ok}
	if !ok {
		b.Implementation = DefaultImplementation
		b.Hidden = !r.show
	}
	return b, nil
}

// Instance returns the backend bound to sub, building it on first use.
func (r *Registry) Instance(sub facility.SubDomain) (any, Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[sub]; ok {
		return inst, r.bindings[sub], nil
	}
	b, err := r.Bind(sub)
	if err != nil {
		return nil, Binding{}, err
	}
	inst, ok := r.built[b.Implementation]
	if !ok {
		factory, found := r.factories[b.Implementation]
		if !found {
			return nil, b, fmt.Errorf("%w: %q for %s", ErrUnknownImplementation, b.Implementation, sub)
		}
		inst, err = factory(r.deps)
		if err != nil {
			return nil, b, fmt.Errorf("build %q for %s: %w", b.Implementation, sub, err)
		}
		r.built[b.Implementation] = inst
	}
	if err := conforms(sub, inst); err != nil {
		return nil, b, err
	}
	r.instances[sub] = inst
	r.bindings[sub] = b
	r.logger.Info("adapter bound",
		zap.String("subdomain", string(sub)),
		zap.String("implementation", b.Implementation),
		zap.Bool("configured", b.Configured),
		zap.Bool("hidden", b.Hidden),
	)
	return inst, b, nil
}

// Resolve returns the backend bound to sub as the contract type T.
func Resolve[T any](r *Registry, sub facility.SubDomain) (T, Binding, error) {
	var zero T
	inst, b, err := r.Instance(sub)
	if err != nil {
		return zero, b, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, b, fmt.Errorf("%w: %s backend %T is not a %T", ErrContractNotSatisfied, sub, inst, (*T)(nil))
	}
	return typed, b, nil
}

// Adapter implements the dispatcher's lookup by router name. Only sub-domains
// already resolved at startup are reachable.
func (r *Registry) Adapter(router string) (any, error) {
	r.mu.Lock()
	inst, ok := r.instances[facility.SubDomain(router)]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no adapter bound for router %q", router)
	}
	return inst, nil
}

// ResolveAll binds every known sub-domain, failing on the first backend
// that does not satisfy its contract.
func (r *Registry) ResolveAll() ([]Binding, error) {
	subs := facility.SubDomains()
	out := make([]Binding, 0, len(subs))
	for _, sub := range subs {
		_, b, err := r.Instance(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// conforms checks inst against the contract of sub.
func conforms(sub facility.SubDomain, inst any) error {
	var ok bool
	switch sub {
	case facility.SubDomainStatus:
		_, ok = inst.(facility.StatusAdapter)
	case facility.SubDomainAccount:
		_, ok = inst.(facility.AccountAdapter)
	case facility.SubDomainCompute:
		_, ok = inst.(facility.ComputeAdapter)
	case facility.SubDomainFilesystem:
		_, ok = inst.(facility.FilesystemAdapter)
	case facility.SubDomainTask:
		_, ok = inst.(facility.TaskAdapter)
	case facility.SubDomainFacility:
		_, ok = inst.(facility.FacilityAdapter)
	}
	if !ok {
		return fmt.Errorf("%w: %T cannot serve %s", ErrContractNotSatisfied, inst, sub)
	}
	return nil
}
