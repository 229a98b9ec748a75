package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/problem"
)

func (s *Server) mountStatus(g *group) {
	g.public(http.MethodGet, "/resources", s.listResources)
	g.public(http.MethodGet, "/resources/{resource_id}", s.getResource)
	g.public(http.MethodGet, "/incidents", s.listIncidents)
	g.public(http.MethodGet, "/incidents/{incident_id}", s.getIncident)
	g.public(http.MethodGet, "/incidents/{incident_id}/events", s.listEvents)
	g.public(http.MethodGet, "/incidents/{incident_id}/events/{event_id}", s.getEvent)
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := facility.ResourceFilter{
		Page:          q.page(),
		Name:          q.str("name"),
		Description:   q.str("description"),
		Group:         q.str("group"),
		ResourceType:  facility.ResourceType(q.str("resource_type")),
		Status:        q.status("status"),
		ModifiedSince: q.time("modified_since"),
	}
	if !q.ok(w, r) {
		return
	}
	out, err := s.status.GetResources(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.status.GetResource(r.Context(), chi.URLParam(r, "resource_id"))
	if err != nil || res == nil {
		notFound(w, r, err, "Resource not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := facility.IncidentFilter{
		Page:          q.page(),
		Name:          q.str("name"),
		Description:   q.str("description"),
		Status:        q.status("status"),
		Type:          facility.IncidentType(q.str("type")),
		ResourceID:    q.str("resource_id"),
		From:          q.time("from"),
		To:            q.time("to"),
		Time:          q.time("time"),
		ModifiedSince: q.time("modified_since"),
	}
	switch filter.Type {
	case "", facility.IncidentPlanned, facility.IncidentUnplanned:
	default:
		q.reject("type", "must be planned or unplanned")
	}
	if !q.ok(w, r) {
		return
	}
	out, err := s.status.GetIncidents(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.status.GetIncident(r.Context(), chi.URLParam(r, "incident_id"))
	if err != nil || inc == nil {
		notFound(w, r, err, "Incident not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := facility.EventFilter{
		Page:          q.page(),
		Name:          q.str("name"),
		Description:   q.str("description"),
		Status:        q.status("status"),
		ResourceID:    q.str("resource_id"),
		From:          q.time("from"),
		To:            q.time("to"),
		Time:          q.time("time"),
		ModifiedSince: q.time("modified_since"),
	}
	if !q.ok(w, r) {
		return
	}
	out, err := s.status.GetEvents(r.Context(), chi.URLParam(r, "incident_id"), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.status.GetEvent(r.Context(), chi.URLParam(r, "incident_id"), chi.URLParam(r, "event_id"))
	if err != nil || ev == nil {
		notFound(w, r, err, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// notFound writes a 404 for a missing record, or the mapped problem when the
// lookup failed for another reason.
func notFound(w http.ResponseWriter, r *http.Request, err error, detail string) {
	if err != nil && problem.Status(err) != http.StatusNotFound {
		problem.Error(w, r, err)
		return
	}
	problem.Write(w, r, http.StatusNotFound, detail)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
