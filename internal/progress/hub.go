package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config tunes the Hub. Zero values take the defaults below.
type Config struct {
	// BufferSize bounds the events waiting for the batching goroutine.
	BufferSize int
	// MaxBatchEvents flushes as soon as a batch reaches this size.
	MaxBatchEvents int
	// MaxBatchWait is the longest an event waits in a partial batch.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// BaseContext parents every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropWarnEvery         = 5 * time.Second
)

// Hub batches task lifecycle events and hands each batch to every sink, in
// order, from a single goroutine. Emit never blocks the task engine.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger
	drops  dropCounter
	closed atomic.Bool

	stopOnce sync.Once
	stopCtx  context.Context
}

// NewHub starts the batching goroutine for sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  slices.Clone(sinks),
		events: make(chan Event, cfg.BufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Named("progress"),
		drops:  dropCounter{every: dropWarnEvery},
	}
	go h.run()
	return h
}

// Emit queues evt. Invalid events are discarded, and when the buffer is full
// the event is dropped with a rate-limited warning. The task itself is
// unaffected either way.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid task event", zap.String("task_id", evt.TaskID), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if n, warn := h.drops.add(time.Now()); warn {
		h.logger.Warn("task events dropped due to backpressure", zap.Int64("dropped", n))
	}
}

// Close stops intake, flushes what is buffered, closes the sinks and waits
// for all of it or for ctx. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.stopCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task event hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	// deadline is armed by the first event of a batch.
	var deadline <-chan time.Time
	flush := func() {
		if len(pending) > 0 {
			h.deliver(pending)
			pending = pending[:0]
		}
		deadline = nil
	}
	add := func(evt Event) {
		pending = append(pending, evt)
		if len(pending) >= h.cfg.MaxBatchEvents {
			flush()
		}
	}

	for {
		select {
		case evt := <-h.events:
			add(evt)
			if len(pending) > 0 && deadline == nil {
				deadline = time.After(h.cfg.MaxBatchWait)
			}
		case <-deadline:
			flush()
		case <-h.quit:
		drain:
			for {
				select {
				case evt := <-h.events:
					add(evt)
				default:
					break drain
				}
			}
			flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) deliver(events []Event) {
	batch := slices.Clone(events)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := h.consume(sink, batch); err != nil {
			h.logger.Warn("task event sink consume failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) consume(sink Sink, batch []Event) error {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
	defer cancel()
	return sink.Consume(ctx, batch)
}

func (h *Hub) closeSinks() {
	ctx := h.stopCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("task event sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

// dropCounter counts dropped events and decides when a warning is due. A
// warning reports every drop since the previous one.
type dropCounter struct {
	every    time.Duration
	total    atomic.Int64
	unwarned atomic.Int64
	lastWarn atomic.Int64
}

func (d *dropCounter) add(now time.Time) (int64, bool) {
	d.total.Add(1)
	d.unwarned.Add(1)
	last := d.lastWarn.Load()
	if d.every > 0 && now.UnixNano()-last < d.every.Nanoseconds() {
		return 0, false
	}
	if !d.lastWarn.CompareAndSwap(last, now.UnixNano()) {
		return 0, false
	}
	return d.unwarned.Swap(0), true
}
