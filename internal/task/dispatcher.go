package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/metrics"
)

const tracerName = "github.com/JakeFAU/iri-facility-api/internal/task"

// Resolver finds the adapter bound to a router name.
type Resolver interface {
	Adapter(router string) (any, error)
}

// Operation invokes one adapter method with arguments rebuilt from a
// canonical mapping.
type Operation func(ctx context.Context, adapter any, res *facility.Resource, user *facility.User, args map[string]any) (any, error)

// Table maps router -> command -> operation.
type Table map[string]map[string]Operation

// Lookup returns the operation for a router/command pair.
func (t Table) Lookup(router, command string) (Operation, bool) {
	op, ok := t[router][command]
	return op, ok
}

// Outcome is the terminal result of one dispatch.
type Outcome struct {
	Status facility.TaskStatus
	Result json.RawMessage
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Status == facility.TaskFailed
}

func failure(msg string) Outcome {
	data, _ := json.Marshal(msg) //nolint:errcheck // strings always marshal
	return Outcome{Status: facility.TaskFailed, Result: data}
}

// Dispatcher executes task commands against bound adapters.
type Dispatcher struct {
	resolver Resolver
	table    Table
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher. A nil table uses DefaultTable.
func NewDispatcher(resolver Resolver, table Table, logger *zap.Logger) *Dispatcher {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver: resolver,
		table:    table,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.Named("dispatcher"),
	}
}

// Known reports whether the table has an entry for the pair.
func (d *Dispatcher) Known(router, command string) bool {
	_, ok := d.table.Lookup(router, command)
	return ok
}

// Dispatch runs cmd and never returns an error: unknown commands, adapter
// errors, panics and unserializable results all become failed outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID string, res *facility.Resource, user *facility.User, cmd facility.TaskCommand) Outcome {
	ctx, span := d.tracer.Start(ctx, "task.dispatch", trace.WithAttributes(
		attribute.String("iri.task_id", taskID),
		attribute.String("iri.router", cmd.Router),
		attribute.String("iri.command", cmd.Command),
	))
	defer span.End()

	start := time.Now()
	out := d.dispatch(ctx, res, user, cmd)

	router, command := cmd.Router, cmd.Command
	if !d.Known(router, command) {
		router, command = "unknown", "unknown"
	}
	metrics.ObserveDispatch(router, command, time.Since(start))

	if out.Failed() {
		var msg string
		_ = json.Unmarshal(out.Result, &msg) //nolint:errcheck // failure results are JSON strings
		span.SetStatus(codes.Error, msg)
		d.logger.Info("task failed",
			zap.String("task_id", taskID),
			zap.String("router", cmd.Router),
			zap.String("command", cmd.Command),
			zap.String("reason", msg),
		)
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, res *facility.Resource, user *facility.User, cmd facility.TaskCommand) Outcome {
	if !d.Known(cmd.Router, cmd.Command) {
		return failure(fmt.Sprintf("unknown router/command: %s:%s", cmd.Router, cmd.Command))
	}
	value, err := d.Invoke(ctx, res, user, cmd)
	if err != nil {
		return failure(err.Error())
	}
	data, err := json.Marshal(value)
	if err != nil {
		return failure(fmt.Sprintf("encode result: %v", err))
	}
	return Outcome{Status: facility.TaskCompleted, Result: data}
}

// Invoke runs cmd synchronously and returns the adapter's value or error
// as is, so callers outside the task lifecycle keep typed errors.
func (d *Dispatcher) Invoke(ctx context.Context, res *facility.Resource, user *facility.User, cmd facility.TaskCommand) (any, error) {
	op, ok := d.table.Lookup(cmd.Router, cmd.Command)
	if !ok {
		return nil, fmt.Errorf("%w: unknown router/command: %s:%s", facility.ErrInvalidArgument, cmd.Router, cmd.Command)
	}
	adapter, err := d.resolver.Adapter(cmd.Router)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, op, adapter, res, user, cmd.Args)
}

func invoke(ctx context.Context, op Operation, adapter any, res *facility.Resource, user *facility.User, args map[string]any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value, err = nil, fmt.Errorf("operation panicked: %v", rec)
		}
	}()
	return op(ctx, adapter, res, user, args)
}

// bind adapts a typed adapter method into an Operation. The adapter must
// implement A and the arguments must decode into P without leftovers.
func bind[A any, P any](fn func(ctx context.Context, a A, res *facility.Resource, user *facility.User, p P) (any, error)) Operation {
	return func(ctx context.Context, adapter any, res *facility.Resource, user *facility.User, args map[string]any) (any, error) {
		a, ok := adapter.(A)
		if !ok {
			return nil, fmt.Errorf("adapter %T does not implement %T", adapter, (*A)(nil))
		}
		var p P
		if args == nil {
			args = map[string]any{}
		}
		if err := facility.DecodeArgs(args, &p); err != nil {
			return nil, fmt.Errorf("bind arguments: %w", err)
		}
		return fn(ctx, a, res, user, p)
	}
}
