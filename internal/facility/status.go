package facility

import "time"

// Status is the operational state of a resource, event or incident.
type Status string

// Known statuses.
const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// ResourceType classifies a resource.
type ResourceType string

// Known resource types.
const (
	ResourceTypeWebsite ResourceType = "website"
	ResourceTypeService ResourceType = "service"
	ResourceTypeCompute ResourceType = "compute"
	ResourceTypeSystem  ResourceType = "system"
	ResourceTypeStorage ResourceType = "storage"
	ResourceTypeNetwork ResourceType = "network"
	ResourceTypeUnknown ResourceType = "unknown"
)

// IncidentType distinguishes maintenance windows from outages.
type IncidentType string

// Known incident types.
const (
	IncidentPlanned   IncidentType = "planned"
	IncidentUnplanned IncidentType = "unplanned"
)

// Resource is something at the facility whose status is reported.
type Resource struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Group         string       `json:"group,omitempty"`
	CapabilityIDs []string     `json:"capability_ids"`
	CurrentStatus Status       `json:"current_status"`
	ResourceType  ResourceType `json:"resource_type"`
	SiteID        string       `json:"site_id,omitempty"`
	LastModified  time.Time    `json:"last_modified"`
}

// Event is a single status observation of a resource.
type Event struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	OccurredAt   time.Time `json:"occurred_at"`
	Status       Status    `json:"status"`
	ResourceID   string    `json:"resource_id"`
	IncidentID   string    `json:"incident_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Incident groups the events of one outage or maintenance window.
type Incident struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	EventIDs     []string     `json:"event_ids"`
	ResourceIDs  []string     `json:"resource_ids"`
	Start        time.Time    `json:"start"`
	End          *time.Time   `json:"end,omitempty"`
	Type         IncidentType `json:"type"`
	Resolution   string       `json:"resolution"`
	LastModified time.Time    `json:"last_modified"`
}

// Page carries offset pagination shared by the list filters.
type Page struct {
	Offset int
	Limit  int
}

// Apply returns the window of n items selected by the page as [start, end).
func (p Page) Apply(n int) (int, int) {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.Limit > 0 && start+p.Limit < n {
		end = start + p.Limit
	}
	return start, end
}

// ResourceFilter narrows GetResources.
type ResourceFilter struct {
	Page
	Name          string
	Description   string
	Group         string
	ResourceType  ResourceType
	Status        Status
	ModifiedSince *time.Time
}

// EventFilter narrows GetEvents.
type EventFilter struct {
	Page
	Name          string
	Description   string
	Status        Status
	ResourceID    string
	From          *time.Time
	To            *time.Time
	Time          *time.Time
	ModifiedSince *time.Time
}

// IncidentFilter narrows GetIncidents.
type IncidentFilter struct {
	Page
	Name          string
	Description   string
	Status        Status
	Type          IncidentType
	ResourceID    string
	From          *time.Time
	To            *time.Time
	Time          *time.Time
	ModifiedSince *time.Time
}
