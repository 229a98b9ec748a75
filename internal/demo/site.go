package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

// GetFacility returns the facility, or ErrNotFound when it has not changed
// since modifiedSince.
func (b *Backend) GetFacility(_ context.Context, modifiedSince *time.Time) (*facility.Facility, error) {
	f := b.data.facility
	if !since(f.LastModified, modifiedSince) {
		return nil, fmt.Errorf("%w: facility not modified since %s", facility.ErrNotFound, modifiedSince.Format(time.RFC3339))
	}
	f.SiteIDs = append([]string(nil), f.SiteIDs...)
	return &f, nil
}

// GetSites lists sites matching filter.
func (b *Backend) GetSites(_ context.Context, filter facility.SiteFilter) ([]facility.Site, error) {
	out := make([]facility.Site, 0, len(b.data.sites))
	for _, s := range b.data.sites {
		if !named(s.Name, s.Description, filter.Name, "") || !since(s.LastModified, filter.ModifiedSince) {
			continue
		}
		if filter.ShortName != "" && s.ShortName != filter.ShortName {
			continue
		}
		if filter.CountryName != "" && s.CountryName != filter.CountryName {
			continue
		}
		out = append(out, s)
	}
	return page(out, filter.Page), nil
}

// GetSite returns one site by id.
func (b *Backend) GetSite(_ context.Context, id string, modifiedSince *time.Time) (*facility.Site, error) {
	for _, s := range b.data.sites {
		if s.ID != id {
			continue
		}
		if !since(s.LastModified, modifiedSince) {
			break
		}
		s.ResourceIDs = append([]string(nil), s.ResourceIDs...)
		return &s, nil
	}
	return nil, fmt.Errorf("%w: site %s", facility.ErrNotFound, id)
}
