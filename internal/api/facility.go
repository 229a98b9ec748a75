package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

func (s *Server) mountFacility(g *group) {
	backend := g.backend.(facility.FacilityAdapter)

	g.public(http.MethodGet, "", func(w http.ResponseWriter, r *http.Request) {
		q := newQuery(r)
		since := q.time("modified_since")
		if !q.ok(w, r) {
			return
		}
		f, err := backend.GetFacility(r.Context(), since)
		if err != nil || f == nil {
			notFound(w, r, err, "Facility not found")
			return
		}
		writeJSON(w, http.StatusOK, f)
	})

	g.public(http.MethodGet, "/sites", func(w http.ResponseWriter, r *http.Request) {
		q := newQuery(r)
		filter := facility.SiteFilter{
			Page:          q.page(),
			Name:          q.str("name"),
			ShortName:     q.str("short_name"),
			CountryName:   q.str("country_name"),
			ModifiedSince: q.time("modified_since"),
		}
		if !q.ok(w, r) {
			return
		}
		sites, err := backend.GetSites(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(sites))
	})

	g.public(http.MethodGet, "/sites/{site_id}", func(w http.ResponseWriter, r *http.Request) {
		q := newQuery(r)
		since := q.time("modified_since")
		if !q.ok(w, r) {
			return
		}
		site, err := backend.GetSite(r.Context(), chi.URLParam(r, "site_id"), since)
		if err != nil || site == nil {
			notFound(w, r, err, "Site not found")
			return
		}
		writeJSON(w, http.StatusOK, site)
	})
}
