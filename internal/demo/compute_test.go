package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func computeResource(t *testing.T, b *Backend) *facility.Resource {
	t.Helper()
	got, err := b.GetResources(context.Background(), facility.ResourceFilter{ResourceType: facility.ResourceTypeCompute})
	require.NoError(t, err)
	require.Len(t, got, 1)
	return &got[0]
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	res := computeResource(t, b)
	user := &facility.User{ID: demoUserID}

	job, err := b.SubmitJob(ctx, res, user, facility.JobSpec{Executable: "/bin/hostname"})
	require.NoError(t, err)
	require.Equal(t, facility.JobNew, job.Status.State)
	require.Equal(t, "job submitted", job.Status.Message)
	require.Equal(t, demoAccount, job.Status.MetaData["account"])

	active, err := b.GetJobs(ctx, res, user, facility.JobQuery{})
	require.NoError(t, err)
	require.Len(t, active, 1)

	updated, err := b.UpdateJob(ctx, res, user, facility.JobSpec{Executable: "/bin/date"}, job.ID)
	require.NoError(t, err)
	require.Equal(t, "/bin/date", updated.JobSpec.Executable)

	got, err := b.GetJob(ctx, res, user, job.ID, false)
	require.NoError(t, err)
	require.Equal(t, facility.JobCompleted, got.Status.State)
	require.Equal(t, 0, *got.Status.ExitCode)

	canceled, err := b.CancelJob(ctx, res, user, job.ID)
	require.NoError(t, err)
	require.False(t, canceled, "finished jobs cannot be canceled")

	active, err = b.GetJobs(ctx, res, user, facility.JobQuery{})
	require.NoError(t, err)
	require.Empty(t, active)
	history, err := b.GetJobs(ctx, res, user, facility.JobQuery{Historical: true, Filters: map[string]any{"state": "COMPLETED"}})
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = b.UpdateJob(ctx, res, user, facility.JobSpec{Executable: "/bin/true"}, job.ID)
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}

func TestCancelPendingJob(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	res := computeResource(t, b)
	user := &facility.User{ID: demoUserID}

	job, err := b.SubmitJob(ctx, res, user, facility.JobSpec{Executable: "sleep", Arguments: []string{"60"}})
	require.NoError(t, err)
	ok, err := b.CancelJob(ctx, res, user, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := b.GetJob(ctx, res, user, job.ID, true)
	require.NoError(t, err)
	require.Equal(t, facility.JobCanceled, got.Status.State)
}

func TestJobErrors(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	res := computeResource(t, b)
	user := &facility.User{ID: demoUserID}

	_, err := b.SubmitJob(ctx, res, user, facility.JobSpec{})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	storage := b.data.resources[1]
	_, err = b.SubmitJob(ctx, &storage, user, facility.JobSpec{Executable: "x"})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)

	job, err := b.SubmitJob(ctx, res, user, facility.JobSpec{Executable: "x"})
	require.NoError(t, err)
	_, err = b.GetJob(ctx, res, &facility.User{ID: "other"}, job.ID, false)
	require.ErrorIs(t, err, facility.ErrNotFound)
	_, err = b.CancelJob(ctx, res, user, "missing")
	require.ErrorIs(t, err, facility.ErrNotFound)

	_, err = b.GetJobs(ctx, res, user, facility.JobQuery{Filters: map[string]any{"state": "SLEEPING"}})
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}

func TestSubmitJobScript(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	ctx := context.Background()
	res := computeResource(t, b)
	user := &facility.User{ID: demoUserID}

	job, err := b.SubmitJobScript(ctx, res, user, "test.txt", []string{"-v"})
	require.NoError(t, err)
	require.Equal(t, []string{"-v"}, job.JobSpec.Arguments)

	_, err = b.SubmitJobScript(ctx, res, user, "../../etc/passwd", nil)
	require.ErrorIs(t, err, facility.ErrInvalidArgument)
}
