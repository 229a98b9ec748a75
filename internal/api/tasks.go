package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

// TaskRef is the 202 body of an asynchronous submission.
type TaskRef struct {
	TaskID  string `json:"task_id"`
	TaskURI string `json:"task_uri"`
}

func (s *Server) mountTasks(g *group) {
	g.protected(http.MethodGet, "", func(w http.ResponseWriter, r *http.Request) {
		u, ok := g.user(w, r)
		if !ok {
			return
		}
		tasks, err := s.tasks.GetTasks(r.Context(), u)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(tasks))
	})

	g.protected(http.MethodGet, "/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		u, ok := g.user(w, r)
		if !ok {
			return
		}
		t, err := s.tasks.GetTask(r.Context(), u, chi.URLParam(r, "task_id"))
		if err != nil || t == nil {
			notFound(w, r, err, "Task not found")
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	g.protected(http.MethodDelete, "/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		u, ok := g.user(w, r)
		if !ok {
			return
		}
		t, err := s.tasks.CancelTask(r.Context(), u, chi.URLParam(r, "task_id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
}

// submit hands cmd to the task sub-domain and answers with where to poll.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, u *facility.User, res *facility.Resource, cmd facility.TaskCommand) {
	id, err := s.tasks.PutTask(r.Context(), u, res, cmd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	uri := problem.BaseURL(r) + s.basePath + "/" + string(facility.SubDomainTask) + "/" + id
	w.Header().Set("Location", uri)
	writeJSON(w, http.StatusAccepted, TaskRef{TaskID: id, TaskURI: uri})
}
