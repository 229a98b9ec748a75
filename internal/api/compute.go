package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

func (s *Server) mountCompute(g *group) {
	g.protected(http.MethodPost, "/job/{resource_id}", s.computeHandler(g, "submit_job", func(_ *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		spec, ok := jobSpec(w, r)
		if !ok {
			return nil, false
		}
		return map[string]any{"job_spec": spec}, true
	}))

	g.protected(http.MethodPost, "/job/script/{resource_id}", s.computeHandler(g, "submit_job_script", func(_ *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		if err := r.ParseForm(); err != nil {
			problem.Write(w, r, http.StatusBadRequest, "invalid form body")
			return nil, false
		}
		path := r.Form.Get("job_script_path")
		if path == "" {
			problem.Write(w, r, http.StatusBadRequest, "job_script_path is required")
			return nil, false
		}
		args := r.Form["args"]
		if args == nil {
			args = []string{}
		}
		return map[string]any{"path": path, "args": args}, true
	}))

	g.protected(http.MethodPut, "/job/{resource_id}/{job_id}", s.computeHandler(g, "update_job", func(_ *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		spec, ok := jobSpec(w, r)
		if !ok {
			return nil, false
		}
		return map[string]any{"job_spec": spec, "job_id": chi.URLParam(r, "job_id")}, true
	}))

	g.protected(http.MethodGet, "/status/{resource_id}/{job_id}", s.computeHandler(g, "get_job", func(_ *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		q := newQuery(r)
		historical := q.boolean("historical")
		if !q.ok(w, r) {
			return nil, false
		}
		return map[string]any{"job_id": chi.URLParam(r, "job_id"), "historical": historical}, true
	}))

	g.protected(http.MethodPost, "/status/{resource_id}", s.computeHandler(g, "get_jobs", func(_ *Server, w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
		q := newQuery(r)
		page := q.page()
		historical := q.boolean("historical")
		if !q.ok(w, r) {
			return nil, false
		}
		body, err := readBody(r)
		if err != nil {
			problem.Write(w, r, http.StatusUnprocessableEntity, err.Error())
			return nil, false
		}
		filters := map[string]any{}
		if body != nil {
			m, ok := body.(map[string]any)
			if !ok {
				problem.Write(w, r, http.StatusUnprocessableEntity, "filters must be a JSON object")
				return nil, false
			}
			filters = m
		}
		return map[string]any{
			"offset":     page.Offset,
			"limit":      page.Limit,
			"filters":    filters,
			"historical": historical,
		}, true
	}))

	g.protected(http.MethodDelete, "/cancel/{resource_id}/{job_id}", func(w http.ResponseWriter, r *http.Request) {
		u, res, ok := g.caller(w, r)
		if !ok {
			return
		}
		cmd, err := facility.NewTaskCommand(g.sub, "cancel_job", map[string]any{"job_id": chi.URLParam(r, "job_id")})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		value, err := s.invoker.Invoke(r.Context(), res, u, cmd)
		switch {
		case errors.Is(err, facility.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, "Job not found")
			return
		case err != nil:
			problem.Write(w, r, http.StatusBadRequest, "Unable to cancel job: "+err.Error())
			return
		}
		if canceled, _ := value.(bool); !canceled {
			problem.Write(w, r, http.StatusBadRequest, "Unable to cancel job: job already finished")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// computeHandler resolves the caller, builds the command and runs it within
// the request.
func (s *Server) computeHandler(g *group, command string, parse parser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, res, ok := g.caller(w, r)
		if !ok {
			return
		}
		cmd, ok := s.command(w, r, g.sub, command, parse)
		if !ok {
			return
		}
		g.invoke(w, r, u, res, cmd)
	}
}

func jobSpec(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	spec, ok := bodyArgs[facility.JobSpec](w, r)
	if !ok {
		return nil, false
	}
	if err := spec.Validate(); err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	out, err := flatArgs(spec)
	if err != nil {
		problem.Error(w, r, err)
		return nil, false
	}
	return out, true
}
