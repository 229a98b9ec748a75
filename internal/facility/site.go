package facility

import "time"

// Facility describes the organization operating the API.
type Facility struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	ShortName        string    `json:"short_name,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	SupportURI       string    `json:"support_uri,omitempty"`
	SiteIDs          []string  `json:"site_ids"`
	LastModified     time.Time `json:"last_modified"`
}

// Site is a physical location of the facility.
type Site struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	ShortName             string    `json:"short_name,omitempty"`
	OperatingOrganization string    `json:"operating_organization"`
	CountryName           string    `json:"country_name,omitempty"`
	LocalityName          string    `json:"locality_name,omitempty"`
	StateOrProvinceName   string    `json:"state_or_province_name,omitempty"`
	StreetAddress         string    `json:"street_address,omitempty"`
	Latitude              float64   `json:"latitude,omitempty"`
	Longitude             float64   `json:"longitude,omitempty"`
	ResourceIDs           []string  `json:"resource_ids"`
	LastModified          time.Time `json:"last_modified"`
}

// SiteFilter narrows GetSites.
type SiteFilter struct {
	Page
	Name          string
	ShortName     string
	CountryName   string
	ModifiedSince *time.Time
}
