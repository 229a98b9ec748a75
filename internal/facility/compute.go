package facility

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ResourceSpec is the hardware requested by a job.
type ResourceSpec struct {
	NodeCount          *int  `json:"node_count,omitempty"`
	ProcessCount       *int  `json:"process_count,omitempty"`
	ProcessesPerNode   *int  `json:"processes_per_node,omitempty"`
	CPUCoresPerProcess *int  `json:"cpu_cores_per_process,omitempty"`
	GPUCoresPerProcess *int  `json:"gpu_cores_per_process,omitempty"`
	ExclusiveNodeUse   *bool `json:"exclusive_node_use,omitempty"`
	Memory             *int  `json:"memory,omitempty"`
}

// JobAttributes carries scheduler hints for a job.
type JobAttributes struct {
	Duration         *int              `json:"duration,omitempty"`
	QueueName        string            `json:"queue_name,omitempty"`
	Account          string            `json:"account,omitempty"`
	ReservationID    string            `json:"reservation_id,omitempty"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
}

// JobSpec describes a job to run on a compute resource.
type JobSpec struct {
	Executable         string            `json:"executable"`
	Arguments          []string          `json:"arguments,omitempty"`
	Directory          string            `json:"directory,omitempty"`
	Name               string            `json:"name,omitempty"`
	InheritEnvironment *bool             `json:"inherit_environment,omitempty"`
	Environment        map[string]string `json:"environment,omitempty"`
	StdinPath          string            `json:"stdin_path,omitempty"`
	StdoutPath         string            `json:"stdout_path,omitempty"`
	StderrPath         string            `json:"stderr_path,omitempty"`
	Resources          *ResourceSpec     `json:"resources,omitempty"`
	Attributes         *JobAttributes    `json:"attributes,omitempty"`
	PreLaunch          string            `json:"pre_launch,omitempty"`
	PostLaunch         string            `json:"post_launch,omitempty"`
	Launcher           string            `json:"launcher,omitempty"`
}

// Validate checks the fields a scheduler cannot do without.
func (s JobSpec) Validate() error {
	if s.Executable == "" {
		return fmt.Errorf("%w: executable is required", ErrInvalidArgument)
	}
	if s.Resources != nil {
		for name, v := range map[string]*int{
			"node_count":            s.Resources.NodeCount,
			"process_count":         s.Resources.ProcessCount,
			"processes_per_node":    s.Resources.ProcessesPerNode,
			"cpu_cores_per_process": s.Resources.CPUCoresPerProcess,
			"gpu_cores_per_process": s.Resources.GPUCoresPerProcess,
			"memory":                s.Resources.Memory,
		} {
			if v != nil && *v < 1 {
				return fmt.Errorf("%w: resources.%s must be >= 1", ErrInvalidArgument, name)
			}
		}
	}
	if s.Attributes != nil && s.Attributes.Duration != nil && *s.Attributes.Duration < 1 {
		return fmt.Errorf("%w: attributes.duration must be >= 1", ErrInvalidArgument)
	}
	return nil
}

// JobState is the PSI/J job state. It serializes by name.
type JobState int

// Job states in lifecycle order.
const (
	JobNew JobState = iota
	JobQueued
	JobActive
	JobCompleted
	JobFailed
	JobCanceled
)

var jobStateNames = [...]string{"NEW", "QUEUED", "ACTIVE", "COMPLETED", "FAILED", "CANCELED"}

func (s JobState) String() string {
	if s < 0 || int(s) >= len(jobStateNames) {
		return "JobState(" + strconv.Itoa(int(s)) + ")"
	}
	return jobStateNames[s]
}

// Final reports whether the job can no longer change state.
func (s JobState) Final() bool {
	return s >= JobCompleted
}

// ParseJobState accepts a state name.
func ParseJobState(name string) (JobState, error) {
	for i, n := range jobStateNames {
		if n == name {
			return JobState(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown job state %q", ErrInvalidArgument, name)
}

// MarshalJSON writes the state name.
func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the state name or its ordinal.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		state, err := ParseJobState(name)
		if err != nil {
			return err
		}
		*s = state
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode job state: %w", err)
	}
	if n < 0 || n >= len(jobStateNames) {
		return fmt.Errorf("%w: job state %d out of range", ErrInvalidArgument, n)
	}
	*s = JobState(n)
	return nil
}

// JobStatus is a point-in-time view of a job's state.
type JobStatus struct {
	State    JobState       `json:"state"`
	Time     *float64       `json:"time,omitempty"`
	Message  string         `json:"message,omitempty"`
	ExitCode *int           `json:"exit_code,omitempty"`
	MetaData map[string]any `json:"meta_data,omitempty"`
}

// Job is a submitted job.
type Job struct {
	ID      string     `json:"id"`
	Status  *JobStatus `json:"status,omitempty"`
	JobSpec *JobSpec   `json:"job_spec,omitempty"`
}

// JobQuery narrows GetJobs.
type JobQuery struct {
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
	Filters    map[string]any `json:"filters,omitempty"`
	Historical bool           `json:"historical"`
}
