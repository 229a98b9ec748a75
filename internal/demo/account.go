package demo

import (
	"context"
	"fmt"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// GetCapabilities lists every capability.
func (b *Backend) GetCapabilities(context.Context) ([]facility.Capability, error) {
	return append([]facility.Capability(nil), b.data.capabilities...), nil
}

// GetProjects lists the projects user belongs to.
func (b *Backend) GetProjects(_ context.Context, user *facility.User) ([]facility.Project, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", facility.ErrInvalidArgument)
	}
	out := make([]facility.Project, 0, len(b.data.projects))
	for _, p := range b.data.projects {
		if contains(p.UserIDs, user.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetProjectAllocations lists the allocations of one project.
func (b *Backend) GetProjectAllocations(_ context.Context, project *facility.Project, _ *facility.User) ([]facility.ProjectAllocation, error) {
	if project == nil {
		return nil, fmt.Errorf("%w: project is required", facility.ErrInvalidArgument)
	}
	out := make([]facility.ProjectAllocation, 0)
	for _, pa := range b.data.projectAllocations {
		if pa.ProjectID == project.ID {
			out = append(out, pa)
		}
	}
	return out, nil
}

// GetUserAllocations lists the user shares of one project allocation.
func (b *Backend) GetUserAllocations(_ context.Context, user *facility.User, allocation *facility.ProjectAllocation) ([]facility.UserAllocation, error) {
	if allocation == nil {
		return nil, fmt.Errorf("%w: project allocation is required", facility.ErrInvalidArgument)
	}
	out := make([]facility.UserAllocation, 0)
	for _, ua := range b.data.userAllocations {
		if ua.ProjectAllocationID != allocation.ID {
			continue
		}
		if user != nil && ua.UserID != user.ID {
			continue
		}
		out = append(out, ua)
	}
	return out, nil
}
