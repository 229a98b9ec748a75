package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := tasksTotal
	Init()
	require.Same(t, first, tasksTotal)
}

func TestTaskAndAuthCounters(t *testing.T) {
	ObserveTask("filesystem", "mkdir", "completed")
	ObserveTask("filesystem", "mkdir", "completed")
	ObserveDispatch("filesystem", "mkdir", 10*time.Millisecond)
	ObserveAuthFailure("compute")
	ObserveQueueRejection()
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()

	require.InDelta(t, 2, testutil.ToFloat64(tasksTotal.WithLabelValues("filesystem", "mkdir", "completed")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(authFailuresTotal.WithLabelValues("compute")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(activeWorkers), 0)
	require.GreaterOrEqual(t, testutil.ToFloat64(queueRejectionsTotal), 1.0)
	require.Positive(t, testutil.CollectAndCount(taskDispatchSeconds))
}
