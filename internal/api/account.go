package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

type accountRoutes struct {
	g       *group
	backend facility.AccountAdapter
}

func (s *Server) mountAccount(g *group) {
	a := &accountRoutes{g: g, backend: g.backend.(facility.AccountAdapter)}
	g.public(http.MethodGet, "/capabilities", a.listCapabilities)
	g.public(http.MethodGet, "/capabilities/{capability_id}", a.getCapability)
	g.protected(http.MethodGet, "/projects", a.listProjects)
	g.protected(http.MethodGet, "/projects/{project_id}", a.getProject)
	g.protected(http.MethodGet, "/projects/{project_id}/project_allocations", a.listProjectAllocations)
	g.protected(http.MethodGet, "/projects/{project_id}/project_allocations/{project_allocation_id}", a.getProjectAllocation)
	g.protected(http.MethodGet, "/projects/{project_id}/project_allocations/{project_allocation_id}/user_allocations", a.listUserAllocations)
	g.protected(http.MethodGet, "/projects/{project_id}/project_allocations/{project_allocation_id}/user_allocations/{user_allocation_id}", a.getUserAllocation)
}

func (a *accountRoutes) listCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := a.backend.GetCapabilities(r.Context())
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(caps))
}

func (a *accountRoutes) getCapability(w http.ResponseWriter, r *http.Request) {
	caps, err := a.backend.GetCapabilities(r.Context())
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "capability_id")
	for i := range caps {
		if caps[i].ID == id {
			writeJSON(w, http.StatusOK, caps[i])
			return
		}
	}
	problem.Write(w, r, http.StatusNotFound, "Capability not found")
}

func (a *accountRoutes) listProjects(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	projects, err := a.backend.GetProjects(r.Context(), u)
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(projects))
}

func (a *accountRoutes) getProject(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	if p, ok := a.project(w, r, u); ok {
		writeJSON(w, http.StatusOK, p)
	}
}

func (a *accountRoutes) listProjectAllocations(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	p, ok := a.project(w, r, u)
	if !ok {
		return
	}
	allocs, err := a.backend.GetProjectAllocations(r.Context(), p, u)
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(allocs))
}

func (a *accountRoutes) getProjectAllocation(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	if pa, ok := a.projectAllocation(w, r, u); ok {
		writeJSON(w, http.StatusOK, pa)
	}
}

func (a *accountRoutes) listUserAllocations(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	pa, ok := a.projectAllocation(w, r, u)
	if !ok {
		return
	}
	uas, err := a.backend.GetUserAllocations(r.Context(), u, pa)
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(uas))
}

func (a *accountRoutes) getUserAllocation(w http.ResponseWriter, r *http.Request) {
	u, ok := a.g.user(w, r)
	if !ok {
		return
	}
	pa, ok := a.projectAllocation(w, r, u)
	if !ok {
		return
	}
	uas, err := a.backend.GetUserAllocations(r.Context(), u, pa)
	if err != nil {
		a.g.s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "user_allocation_id")
	for i := range uas {
		if uas[i].ID == id {
			writeJSON(w, http.StatusOK, uas[i])
			return
		}
	}
	problem.Write(w, r, http.StatusNotFound, "User allocation not found")
}

// project finds {project_id} among the caller's projects.
func (a *accountRoutes) project(w http.ResponseWriter, r *http.Request, u *facility.User) (*facility.Project, bool) {
	projects, err := a.backend.GetProjects(r.Context(), u)
	if err != nil {
		a.g.s.fail(w, r, err)
		return nil, false
	}
	id := chi.URLParam(r, "project_id")
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i], true
		}
	}
	problem.Write(w, r, http.StatusNotFound, "Project not found")
	return nil, false
}

func (a *accountRoutes) projectAllocation(w http.ResponseWriter, r *http.Request, u *facility.User) (*facility.ProjectAllocation, bool) {
	p, ok := a.project(w, r, u)
	if !ok {
		return nil, false
	}
	allocs, err := a.backend.GetProjectAllocations(r.Context(), p, u)
	if err != nil {
		a.g.s.fail(w, r, err)
		return nil, false
	}
	id := chi.URLParam(r, "project_allocation_id")
	for i := range allocs {
		if allocs[i].ID == id {
			return &allocs[i], true
		}
	}
	problem.Write(w, r, http.StatusNotFound, "Project allocation not found")
	return nil, false
}
