package facility

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskPending, TaskActive, true},
		{TaskPending, TaskCompleted, true},
		{TaskPending, TaskCanceled, true},
		{TaskActive, TaskCompleted, true},
		{TaskActive, TaskFailed, true},
		{TaskActive, TaskCanceled, true},
		{TaskPending, TaskPending, false},
		{TaskActive, TaskActive, false},
		{TaskActive, TaskPending, false},
		{TaskCompleted, TaskActive, false},
		{TaskCompleted, TaskCanceled, false},
		{TaskCanceled, TaskCompleted, false},
		{TaskFailed, TaskFailed, false},
		{TaskStatus("bogus"), TaskActive, false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTaskJSONHidesOwner(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Task{ID: "t", UserID: "u", Status: TaskPending})
	require.NoError(t, err)
	require.NotContains(t, string(data), `"u"`)
	require.Contains(t, string(data), `"result":null`)
}

func TestJobStateJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(JobStatus{State: JobQueued})
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"QUEUED"}`, string(data))

	var st JobStatus
	require.NoError(t, json.Unmarshal([]byte(`{"state":"CANCELED"}`), &st))
	require.Equal(t, JobCanceled, st.State)
	require.NoError(t, json.Unmarshal([]byte(`{"state":2}`), &st))
	require.Equal(t, JobActive, st.State)
	require.Error(t, json.Unmarshal([]byte(`{"state":"RUNNING"}`), &st))
	require.True(t, JobFailed.Final())
	require.False(t, JobActive.Final())
}

func TestJobSpecValidate(t *testing.T) {
	t.Parallel()

	zero := 0
	require.ErrorIs(t, JobSpec{}.Validate(), ErrInvalidArgument)
	require.ErrorIs(t, JobSpec{Executable: "x", Resources: &ResourceSpec{NodeCount: &zero}}.Validate(), ErrInvalidArgument)
	require.NoError(t, JobSpec{Executable: "x"}.Validate())
}

func TestPageApply(t *testing.T) {
	t.Parallel()

	start, end := Page{Offset: 2, Limit: 3}.Apply(10)
	require.Equal(t, 2, start)
	require.Equal(t, 5, end)
	start, end = Page{Offset: 20}.Apply(10)
	require.Equal(t, 10, start)
	require.Equal(t, 10, end)
	start, end = Page{}.Apply(4)
	require.Equal(t, 0, start)
	require.Equal(t, 4, end)
}
