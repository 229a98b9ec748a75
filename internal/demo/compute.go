package demo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

const demoAccount = "account1"

type jobRecord struct {
	job       facility.Job
	owner     string
	resource  string
	submitted time.Time
	seq       int
}

// SubmitJob queues spec on a compute resource. Demo jobs complete the first
// time they are observed.
func (b *Backend) SubmitJob(_ context.Context, res *facility.Resource, user *facility.User, spec facility.JobSpec) (*facility.Job, error) {
	if err := requireCompute(res, user); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	id, err := b.jobIDs.NewID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &jobRecord{
		job: facility.Job{
			ID:      id,
			Status:  jobStatus(facility.JobNew, now, "job submitted", nil),
			JobSpec: &spec,
		},
		owner:     user.ID,
		resource:  res.ID,
		submitted: now,
	}
	b.mu.Lock()
	rec.seq = len(b.jobs)
	b.jobs[id] = rec
	b.mu.Unlock()
	b.logger.Info("job submitted",
		zap.String("job_id", id),
		zap.String("resource_id", res.ID),
		zap.String("user_id", user.ID),
		zap.String("executable", spec.Executable),
	)
	return cloneJob(rec.job), nil
}

// SubmitJobScript runs the sandbox script at path with args.
func (b *Backend) SubmitJobScript(ctx context.Context, res *facility.Resource, user *facility.User, path string, args []string) (*facility.Job, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	return b.SubmitJob(ctx, res, user, facility.JobSpec{Executable: full, Arguments: args})
}

// UpdateJob replaces the spec of a job that has not finished.
func (b *Backend) UpdateJob(_ context.Context, res *facility.Resource, user *facility.User, spec facility.JobSpec, jobID string) (*facility.Job, error) {
	if err := requireCompute(res, user); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.job(res, user, jobID)
	if err != nil {
		return nil, err
	}
	if rec.job.Status.State.Final() {
		return nil, fmt.Errorf("%w: job %s is %s", facility.ErrInvalidArgument, jobID, rec.job.Status.State)
	}
	rec.job.JobSpec = &spec
	rec.job.Status = jobStatus(rec.job.Status.State, time.Now().UTC(), "job updated", nil)
	return cloneJob(rec.job), nil
}

// GetJob returns a job owned by user.
func (b *Backend) GetJob(_ context.Context, res *facility.Resource, user *facility.User, jobID string, _ bool) (*facility.Job, error) {
	if err := requireCompute(res, user); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.job(res, user, jobID)
	if err != nil {
		return nil, err
	}
	b.observe(rec)
	return cloneJob(rec.job), nil
}

// GetJobs lists the user's jobs on res. A "state" filter narrows by state
// name; historical includes finished jobs.
func (b *Backend) GetJobs(_ context.Context, res *facility.Resource, user *facility.User, query facility.JobQuery) ([]facility.Job, error) {
	if err := requireCompute(res, user); err != nil {
		return nil, err
	}
	var state *facility.JobState
	if raw, ok := query.Filters["state"]; ok {
		s, err := facility.ParseJobState(fmt.Sprint(raw))
		if err != nil {
			return nil, err
		}
		state = &s
	}

	b.mu.Lock()
	recs := make([]*jobRecord, 0, len(b.jobs))
	for _, rec := range b.jobs {
		if rec.owner == user.ID && rec.resource == res.ID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]facility.Job, 0, len(recs))
	for _, rec := range recs {
		if rec.job.Status.State.Final() && !query.Historical {
			continue
		}
		if state != nil && rec.job.Status.State != *state {
			continue
		}
		out = append(out, *cloneJob(rec.job))
	}
	b.mu.Unlock()

	return page(out, facility.Page{Offset: query.Offset, Limit: query.Limit}), nil
}

// CancelJob cancels a job. It reports false when the job already finished.
func (b *Backend) CancelJob(_ context.Context, res *facility.Resource, user *facility.User, jobID string) (bool, error) {
	if err := requireCompute(res, user); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.job(res, user, jobID)
	if err != nil {
		return false, err
	}
	if rec.job.Status.State.Final() {
		return false, nil
	}
	rec.job.Status = jobStatus(facility.JobCanceled, time.Now().UTC(), "job canceled", nil)
	return true, nil
}

// job looks up a record the caller may see. Callers hold b.mu.
func (b *Backend) job(res *facility.Resource, user *facility.User, jobID string) (*jobRecord, error) {
	rec, ok := b.jobs[jobID]
	if !ok || rec.owner != user.ID || rec.resource != res.ID {
		return nil, fmt.Errorf("%w: job %s", facility.ErrNotFound, jobID)
	}
	return rec, nil
}

// observe completes a pending job. Callers hold b.mu.
func (b *Backend) observe(rec *jobRecord) {
	if rec.job.Status.State.Final() {
		return
	}
	exit := 0
	rec.job.Status = jobStatus(facility.JobCompleted, time.Now().UTC(), "job completed", &exit)
}

func requireCompute(res *facility.Resource, user *facility.User) error {
	if res == nil || user == nil {
		return fmt.Errorf("%w: resource and user are required", facility.ErrInvalidArgument)
	}
	if res.ResourceType != facility.ResourceTypeCompute {
		return fmt.Errorf("%w: resource %s is not a compute resource", facility.ErrInvalidArgument, res.ID)
	}
	return nil
}

func jobStatus(state facility.JobState, at time.Time, msg string, exit *int) *facility.JobStatus {
	ts := float64(at.UnixNano()) / float64(time.Second)
	return &facility.JobStatus{
		State:    state,
		Time:     &ts,
		Message:  msg,
		ExitCode: exit,
		MetaData: map[string]any{"account": demoAccount},
	}
}

func cloneJob(j facility.Job) *facility.Job {
	if j.Status != nil {
		st := *j.Status
		st.MetaData = make(map[string]any, len(j.Status.MetaData))
		for k, v := range j.Status.MetaData {
			st.MetaData[k] = v
		}
		j.Status = &st
	}
	if j.JobSpec != nil {
		spec := *j.JobSpec
		j.JobSpec = &spec
	}
	return &j
}
