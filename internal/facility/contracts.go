package facility

import (
	"context"
	"time"
)

// Authenticator resolves bearer credentials. Every sub-domain contract
// embeds it so each route group authenticates against its own backend.
type Authenticator interface {
	// ResolveIdentity maps a credential and caller address to a user id.
	// An error or an empty id both mean the caller is not authenticated.
	ResolveIdentity(ctx context.Context, credential, peerAddr string) (string, error)
	// GetUser loads the user behind a resolved id.
	GetUser(ctx context.Context, userID, credential string) (*User, error)
}

// StatusAdapter reports resource health.
type StatusAdapter interface {
	Authenticator
	GetResources(ctx context.Context, filter ResourceFilter) ([]Resource, error)
	GetResource(ctx context.Context, id string) (*Resource, error)
	GetEvents(ctx context.Context, incidentID string, filter EventFilter) ([]Event, error)
	GetEvent(ctx context.Context, incidentID, id string) (*Event, error)
	GetIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	GetIncident(ctx context.Context, id string) (*Incident, error)
}

// AccountAdapter reports projects and allocations.
type AccountAdapter interface {
	Authenticator
	GetCapabilities(ctx context.Context) ([]Capability, error)
	GetProjects(ctx context.Context, user *User) ([]Project, error)
	GetProjectAllocations(ctx context.Context, project *Project, user *User) ([]ProjectAllocation, error)
	GetUserAllocations(ctx context.Context, user *User, allocation *ProjectAllocation) ([]UserAllocation, error)
}

// ComputeAdapter submits and tracks jobs on a compute resource.
type ComputeAdapter interface {
	Authenticator
	SubmitJob(ctx context.Context, res *Resource, user *User, spec JobSpec) (*Job, error)
	SubmitJobScript(ctx context.Context, res *Resource, user *User, path string, args []string) (*Job, error)
	UpdateJob(ctx context.Context, res *Resource, user *User, spec JobSpec, jobID string) (*Job, error)
	GetJob(ctx context.Context, res *Resource, user *User, jobID string, historical bool) (*Job, error)
	GetJobs(ctx context.Context, res *Resource, user *User, query JobQuery) ([]Job, error)
	CancelJob(ctx context.Context, res *Resource, user *User, jobID string) (bool, error)
}

// FilesystemAdapter performs file operations on a storage resource.
type FilesystemAdapter interface {
	Authenticator
	Chmod(ctx context.Context, res *Resource, user *User, req ChmodRequest) (*File, error)
	Chown(ctx context.Context, res *Resource, user *User, req ChownRequest) (*File, error)
	Ls(ctx context.Context, res *Resource, user *User, req LsRequest) ([]File, error)
	Head(ctx context.Context, res *Resource, user *User, req HeadRequest) (*FileContent, error)
	Tail(ctx context.Context, res *Resource, user *User, req TailRequest) (*FileContent, error)
	View(ctx context.Context, res *Resource, user *User, req ViewRequest) (string, error)
	Checksum(ctx context.Context, res *Resource, user *User, path string) (*FileChecksum, error)
	FileType(ctx context.Context, res *Resource, user *User, path string) (string, error)
	Stat(ctx context.Context, res *Resource, user *User, req StatRequest) (*FileStat, error)
	Remove(ctx context.Context, res *Resource, user *User, path string) error
	Mkdir(ctx context.Context, res *Resource, user *User, req MkdirRequest) (*File, error)
	Symlink(ctx context.Context, res *Resource, user *User, req SymlinkRequest) (*File, error)
	Download(ctx context.Context, res *Resource, user *User, path string) ([]byte, error)
	Upload(ctx context.Context, res *Resource, user *User, req UploadRequest) error
	Compress(ctx context.Context, res *Resource, user *User, req CompressRequest) (*File, error)
	Extract(ctx context.Context, res *Resource, user *User, req ExtractRequest) (*File, error)
	Move(ctx context.Context, res *Resource, user *User, req MoveRequest) (*File, error)
	Copy(ctx context.Context, res *Resource, user *User, req CopyRequest) (*File, error)
}

// TaskManager is the task submission and query boundary.
type TaskManager interface {
	PutTask(ctx context.Context, user *User, res *Resource, cmd TaskCommand) (string, error)
	GetTask(ctx context.Context, user *User, id string) (*Task, error)
	GetTasks(ctx context.Context, user *User) ([]Task, error)
	CancelTask(ctx context.Context, user *User, id string) (*Task, error)
}

// TaskAdapter is the task sub-domain contract.
type TaskAdapter interface {
	Authenticator
	TaskManager
}

// FacilityAdapter describes the facility and its sites.
type FacilityAdapter interface {
	Authenticator
	GetFacility(ctx context.Context, modifiedSince *time.Time) (*Facility, error)
	GetSites(ctx context.Context, filter SiteFilter) ([]Site, error)
	GetSite(ctx context.Context, id string, modifiedSince *time.Time) (*Site, error)
}
