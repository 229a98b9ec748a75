package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// GetResources lists resources matching filter.
func (b *Backend) GetResources(_ context.Context, filter facility.ResourceFilter) ([]facility.Resource, error) {
	out := make([]facility.Resource, 0, len(b.data.resources))
	for _, r := range b.data.resources {
		if !named(r.Name, r.Description, filter.Name, filter.Description) ||
			!since(r.LastModified, filter.ModifiedSince) {
			continue
		}
		if filter.Group != "" && r.Group != filter.Group {
			continue
		}
		if filter.ResourceType != "" && r.ResourceType != filter.ResourceType {
			continue
		}
		if filter.Status != "" && r.CurrentStatus != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return page(out, filter.Page), nil
}

// GetResource returns one resource by id.
func (b *Backend) GetResource(_ context.Context, id string) (*facility.Resource, error) {
	for _, r := range b.data.resources {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: resource %s", facility.ErrNotFound, id)
}

// GetEvents lists the events of one incident.
func (b *Backend) GetEvents(_ context.Context, incidentID string, filter facility.EventFilter) ([]facility.Event, error) {
	out := make([]facility.Event, 0)
	for _, e := range b.data.events {
		if e.IncidentID != incidentID {
			continue
		}
		if !named(e.Name, e.Description, filter.Name, filter.Description) ||
			!since(e.LastModified, filter.ModifiedSince) {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if !window(e.OccurredAt, filter.From, filter.To) {
			continue
		}
		if filter.Time != nil && !e.OccurredAt.Equal(*filter.Time) {
			continue
		}
		out = append(out, e)
	}
	return page(out, filter.Page), nil
}

// GetEvent returns one event of an incident.
func (b *Backend) GetEvent(_ context.Context, incidentID, id string) (*facility.Event, error) {
	for _, e := range b.data.events {
		if e.ID == id && e.IncidentID == incidentID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: event %s", facility.ErrNotFound, id)
}

// GetIncidents lists incidents matching filter. Time selects incidents that
// were open at that instant.
func (b *Backend) GetIncidents(_ context.Context, filter facility.IncidentFilter) ([]facility.Incident, error) {
	out := make([]facility.Incident, 0)
	for _, inc := range b.data.incidents {
		if !named(inc.Name, inc.Description, filter.Name, filter.Description) ||
			!since(inc.LastModified, filter.ModifiedSince) {
			continue
		}
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		if filter.Type != "" && inc.Type != filter.Type {
			continue
		}
		if filter.ResourceID != "" && !contains(inc.ResourceIDs, filter.ResourceID) {
			continue
		}
		if !window(inc.Start, filter.From, filter.To) {
			continue
		}
		if filter.Time != nil {
			if inc.Start.After(*filter.Time) || (inc.End != nil && inc.End.Before(*filter.Time)) {
				continue
			}
		}
		out = append(out, cloneIncident(inc))
	}
	return page(out, filter.Page), nil
}

// GetIncident returns one incident by id.
func (b *Backend) GetIncident(_ context.Context, id string) (*facility.Incident, error) {
	for _, inc := range b.data.incidents {
		if inc.ID == id {
			c := cloneIncident(inc)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: incident %s", facility.ErrNotFound, id)
}

func cloneIncident(inc facility.Incident) facility.Incident {
	inc.EventIDs = append([]string(nil), inc.EventIDs...)
	inc.ResourceIDs = append([]string(nil), inc.ResourceIDs...)
	if inc.End != nil {
		end := *inc.End
		inc.End = &end
	}
	return inc
}

// named applies the name (exact) and description (substring) filters.
func named(name, desc, wantName, wantDesc string) bool {
	if wantName != "" && name != wantName {
		return false
	}
	return wantDesc == "" || strings.Contains(desc, wantDesc)
}

func since(modified time.Time, ms *time.Time) bool {
	return ms == nil || !modified.Before(*ms)
}

// window keeps t in [from, to).
func window(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	return to == nil || t.Before(*to)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func page[T any](items []T, p facility.Page) []T {
	start, end := p.Apply(len(items))
	return items[start:end]
}
