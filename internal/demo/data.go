package demo

import (
	"fmt"
	"math/rand/v2"
	"time"

	guuid "github.com/google/uuid"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
	"github.com/JakeFAU/iri-facility-api/internal/id/uuid"
)

const (
	demoUserID   = "gtorok"
	demoUserName = "Gabor Torok"

	eventCount = 1000
	resolution = "PM was fixed by NERSC staff"
)

// Events and incidents are generated forward from this instant.
var epoch = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

// namespace scopes the name-based ids of seeded records.
var namespace = guuid.NewSHA1(guuid.NameSpaceURL, []byte("https://iri.example/demo"))

type dataset struct {
	capabilities       []facility.Capability
	resources          []facility.Resource
	events             []facility.Event
	incidents          []facility.Incident
	projects           []facility.Project
	projectAllocations []facility.ProjectAllocation
	userAllocations    []facility.UserAllocation
	facility           facility.Facility
	sites              []facility.Site
}

func stableID(kind string, parts ...any) string {
	return uuid.Stable(namespace, kind+"/"+fmt.Sprint(parts...))
}

// seed builds the dataset. The same seed always yields the same records.
func seed(s int64) *dataset {
	rng := rand.New(rand.NewPCG(uint64(s), 0x9e3779b97f4a7c15))
	dayAgo := epoch.Add(-24 * time.Hour)
	d := &dataset{}

	caps := []struct {
		key   string
		name  string
		units []facility.AllocationUnit
	}{
		{"cpu", "CPU Nodes", []facility.AllocationUnit{facility.UnitNodeHours}},
		{"gpu", "GPU Nodes", []facility.AllocationUnit{facility.UnitNodeHours}},
		{"hpss", "Tape Storage", []facility.AllocationUnit{facility.UnitBytes, facility.UnitInodes}},
		{"gpfs", "GPFS Storage", []facility.AllocationUnit{facility.UnitBytes, facility.UnitInodes}},
	}
	capIDs := make(map[string]string, len(caps))
	for _, c := range caps {
		id := stableID("capability", c.key)
		capIDs[c.key] = id
		d.capabilities = append(d.capabilities, facility.Capability{
			ID:           id,
			Name:         c.name,
			Units:        c.units,
			LastModified: dayAgo,
		})
	}

	siteID := stableID("site", "berkeley")
	resources := []struct {
		name   string
		desc   string
		group  string
		status facility.Status
		typ    facility.ResourceType
		caps   []string
	}{
		{"perlmutter", "compute nodes", "perlmutter", facility.StatusDegraded, facility.ResourceTypeCompute, []string{"cpu", "gpu"}},
		{"hpss", "hpss", "hpss", facility.StatusUp, facility.ResourceTypeStorage, []string{"hpss"}},
		{"cfs", "cfs", "cfs", facility.StatusUp, facility.ResourceTypeStorage, []string{"gpfs"}},
		{"perlmutter", "login nodes", "perlmutter", facility.StatusDegraded, facility.ResourceTypeSystem, nil},
		{"services", "Iris", "services", facility.StatusDown, facility.ResourceTypeWebsite, nil},
		{"services", "sfapi", "services", facility.StatusUp, facility.ResourceTypeService, nil},
	}
	for i, r := range resources {
		ids := make([]string, 0, len(r.caps))
		for _, c := range r.caps {
			ids = append(ids, capIDs[c])
		}
		d.resources = append(d.resources, facility.Resource{
			ID:            stableID("resource", i, r.name),
			Name:          r.name,
			Description:   r.desc,
			Group:         r.group,
			CapabilityIDs: ids,
			CurrentStatus: r.status,
			ResourceType:  r.typ,
			SiteID:        siteID,
			LastModified:  dayAgo,
		})
	}

	for i, name := range []string{"Staff research project", "Test project"} {
		p := facility.Project{
			ID:          stableID("project", i),
			Name:        name,
			Description: name,
			UserIDs:     []string{demoUserID},
		}
		d.projects = append(d.projects, p)
		for _, c := range d.capabilities {
			pa := facility.ProjectAllocation{
				ID:           stableID("project-allocation", p.ID, c.ID),
				ProjectID:    p.ID,
				CapabilityID: c.ID,
			}
			ua := facility.UserAllocation{
				ID:                  stableID("user-allocation", pa.ID, demoUserID),
				ProjectAllocationID: pa.ID,
				UserID:              demoUserID,
			}
			for _, unit := range c.Units {
				e := facility.AllocationEntry{
					Allocation: 500 + rng.Float64()*500,
					Usage:      100 + rng.Float64()*100,
					Unit:       unit,
				}
				pa.Entries = append(pa.Entries, e)
				ua.Entries = append(ua.Entries, facility.AllocationEntry{
					Allocation: e.Allocation / 10,
					Usage:      e.Usage / 10,
					Unit:       unit,
				})
			}
			d.projectAllocations = append(d.projectAllocations, pa)
			d.userAllocations = append(d.userAllocations, ua)
		}
	}

	d.generateEvents(rng, dayAgo)

	siteResources := make([]string, 0, len(d.resources))
	for _, r := range d.resources {
		siteResources = append(siteResources, r.ID)
	}
	d.sites = []facility.Site{{
		ID:                    siteID,
		Name:                  "Lawrence Berkeley National Laboratory",
		Description:           "Shyh Wang Hall, home of the NERSC systems",
		ShortName:             "LBNL",
		OperatingOrganization: "Lawrence Berkeley National Laboratory",
		CountryName:           "United States",
		LocalityName:          "Berkeley",
		StateOrProvinceName:   "California",
		StreetAddress:         "1 Cyclotron Road",
		Latitude:              37.8762,
		Longitude:             -122.2516,
		ResourceIDs:           siteResources,
		LastModified:          dayAgo,
	}}
	d.facility = facility.Facility{
		ID:               stableID("facility", "nersc"),
		Name:             "National Energy Research Scientific Computing Center",
		Description:      "Demo facility backed by seeded data",
		ShortName:        "NERSC",
		OrganizationName: "Lawrence Berkeley National Laboratory",
		SupportURI:       "https://help.nersc.gov",
		SiteIDs:          []string{siteID},
		LastModified:     dayAgo,
	}
	return d
}

// generateEvents walks a clock forward from epoch, emitting one event per
// step for a random resource. A resource going down opens an incident that
// collects its events until it comes back up.
func (d *dataset) generateEvents(rng *rand.Rand, dayAgo time.Time) {
	statuses := make(map[string]facility.Status, len(d.resources))
	for _, r := range d.resources {
		statuses[r.Name] = facility.StatusUp
	}
	open := make(map[string]int)
	types := []facility.IncidentType{facility.IncidentPlanned, facility.IncidentUnplanned}
	at := epoch

	for i := 0; i < eventCount; i++ {
		r := d.resources[rng.IntN(len(d.resources))]
		status := statuses[r.Name]
		label := fmt.Sprintf("%s is %s", r.Name, status)
		ev := facility.Event{
			ID:           stableID("event", i),
			Name:         label,
			Description:  label,
			OccurredAt:   at,
			Status:       status,
			ResourceID:   r.ID,
			LastModified: dayAgo,
		}
		if idx, ok := open[r.Name]; ok {
			inc := &d.incidents[idx]
			ev.IncidentID = inc.ID
			inc.EventIDs = append(inc.EventIDs, ev.ID)
			if status == facility.StatusUp {
				end := at
				inc.End = &end
				delete(open, r.Name)
			}
		}
		d.events = append(d.events, ev)

		if rng.Float64() > 0.9 {
			if status == facility.StatusDown {
				statuses[r.Name] = facility.StatusUp
			} else {
				statuses[r.Name] = facility.StatusDown
				name := fmt.Sprintf("%s incident at %s", r.Name, at.Format("2006-01-02 15:04:05"))
				affected := make([]string, 3)
				for k := range affected {
					affected[k] = d.resources[rng.IntN(len(d.resources))].ID
				}
				end := at
				d.incidents = append(d.incidents, facility.Incident{
					ID:           stableID("incident", len(d.incidents)),
					Name:         name,
					Description:  name,
					Status:       facility.StatusDown,
					EventIDs:     []string{},
					ResourceIDs:  affected,
					Start:        at,
					End:          &end,
					Type:         types[rng.IntN(len(types))],
					Resolution:   resolution,
					LastModified: at,
				})
				open[r.Name] = len(d.incidents) - 1
			}
		}
		at = at.Add(time.Duration(rng.IntN(15)+1) * time.Minute)
	}
}
