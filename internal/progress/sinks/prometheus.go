package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/iri-facility-api/internal/progress"
)

// PrometheusSink exports task lifecycle metrics via Prometheus.
type PrometheusSink struct {
	tasksSubmitted *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	taskRuntime    *prometheus.HistogramVec

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iri_task_events_submitted_total",
			Help: "Tasks accepted partitioned by router and command.",
		}, []string{"router", "command"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iri_task_events_finished_total",
			Help: "Tasks that reached a terminal stage partitioned by router, command and result.",
		}, []string{"router", "command", "result"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iri_task_events_running",
			Help: "Tasks started but not yet terminal.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iri_task_runtime_seconds",
			Help:    "Dispatch time per finished task.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"router", "result"}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.tasksSubmitted,
		s.tasksFinished,
		s.tasksRunning,
		s.taskRuntime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register task event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	router, command := label(evt.Router), label(evt.Command)
	switch evt.Stage {
	case progress.StageTaskSubmitted:
		s.tasksSubmitted.WithLabelValues(router, command).Inc()
	case progress.StageTaskStarted:
		if s.tracker.start(evt.TaskID) {
			s.tasksRunning.Inc()
		}
	case progress.StageTaskCompleted, progress.StageTaskFailed, progress.StageTaskCanceled:
		result := resultLabel(evt.Stage)
		s.tasksFinished.WithLabelValues(router, command, result).Inc()
		if evt.Dur > 0 {
			s.taskRuntime.WithLabelValues(router, result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.TaskID) {
			s.tasksRunning.Dec()
		}
	}
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageTaskCompleted:
		return "completed"
	case progress.StageTaskFailed:
		return "failed"
	default:
		return "canceled"
	}
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type taskTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[string]struct{})}
}

func (t *taskTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *taskTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
