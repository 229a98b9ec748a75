package task

import (
	"context"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

type (
	fsAdapter = facility.FilesystemAdapter
	cpAdapter = facility.ComputeAdapter
)

// body is the argument shape of operations that take a request object.
type body[T any] struct {
	Request T `json:"request_model"`
}

type pathArgs struct {
	Path string `json:"path"`
}

type jobSpecArgs struct {
	JobSpec facility.JobSpec `json:"job_spec"`
}

type jobScriptArgs struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
}

type updateJobArgs struct {
	JobSpec facility.JobSpec `json:"job_spec"`
	JobID   string           `json:"job_id"`
}

type getJobArgs struct {
	JobID      string `json:"job_id"`
	Historical bool   `json:"historical"`
}

type jobIDArgs struct {
	JobID string `json:"job_id"`
}

func output(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return facility.Output{Output: v}, nil
}

// DefaultTable returns the dispatch table for the filesystem and compute
// sub-domains. Adding an operation only needs a new entry here.
func DefaultTable() Table {
	return Table{
		string(facility.SubDomainFilesystem): filesystemOps(),
		string(facility.SubDomainCompute):    computeOps(),
	}
}

func filesystemOps() map[string]Operation {
	return map[string]Operation{
		"chmod": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.ChmodRequest]) (any, error) {
			return output(a.Chmod(ctx, r, u, p.Request))
		}),
		"chown": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.ChownRequest]) (any, error) {
			return output(a.Chown(ctx, r, u, p.Request))
		}),
		"ls": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.LsRequest) (any, error) {
			return output(a.Ls(ctx, r, u, p))
		}),
		"head": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.HeadRequest) (any, error) {
			return output(a.Head(ctx, r, u, p))
		}),
		"tail": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.TailRequest) (any, error) {
			return output(a.Tail(ctx, r, u, p))
		}),
		"view": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.ViewRequest) (any, error) {
			return output(a.View(ctx, r, u, p))
		}),
		"checksum": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p pathArgs) (any, error) {
			return output(a.Checksum(ctx, r, u, p.Path))
		}),
		"file": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p pathArgs) (any, error) {
			return output(a.FileType(ctx, r, u, p.Path))
		}),
		"stat": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.StatRequest) (any, error) {
			return output(a.Stat(ctx, r, u, p))
		}),
		"rm": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p pathArgs) (any, error) {
			return output(nil, a.Remove(ctx, r, u, p.Path))
		}),
		"mkdir": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.MkdirRequest]) (any, error) {
			return output(a.Mkdir(ctx, r, u, p.Request))
		}),
		"symlink": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.SymlinkRequest]) (any, error) {
			return output(a.Symlink(ctx, r, u, p.Request))
		}),
		"download": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p pathArgs) (any, error) {
			return output(a.Download(ctx, r, u, p.Path))
		}),
		"upload": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p facility.UploadRequest) (any, error) {
			return output(nil, a.Upload(ctx, r, u, p))
		}),
		"compress": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.CompressRequest]) (any, error) {
			return output(a.Compress(ctx, r, u, p.Request))
		}),
		"extract": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.ExtractRequest]) (any, error) {
			return output(a.Extract(ctx, r, u, p.Request))
		}),
		"mv": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.MoveRequest]) (any, error) {
			return output(a.Move(ctx, r, u, p.Request))
		}),
		"cp": bind(func(ctx context.Context, a fsAdapter, r *facility.Resource, u *facility.User, p body[facility.CopyRequest]) (any, error) {
			return output(a.Copy(ctx, r, u, p.Request))
		}),
	}
}

func computeOps() map[string]Operation {
	return map[string]Operation{
		"submit_job": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p jobSpecArgs) (any, error) {
			return a.SubmitJob(ctx, r, u, p.JobSpec)
		}),
		"submit_job_script": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p jobScriptArgs) (any, error) {
			return a.SubmitJobScript(ctx, r, u, p.Path, p.Args)
		}),
		"update_job": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p updateJobArgs) (any, error) {
			return a.UpdateJob(ctx, r, u, p.JobSpec, p.JobID)
		}),
		"get_job": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p getJobArgs) (any, error) {
			return a.GetJob(ctx, r, u, p.JobID, p.Historical)
		}),
		"get_jobs": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p facility.JobQuery) (any, error) {
			return a.GetJobs(ctx, r, u, p)
		}),
		"cancel_job": bind(func(ctx context.Context, a cpAdapter, r *facility.Resource, u *facility.User, p jobIDArgs) (any, error) {
			return a.CancelJob(ctx, r, u, p.JobID)
		}),
	}
}
