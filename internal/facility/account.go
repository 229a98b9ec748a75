package facility

import "time"

// AllocationUnit is the unit an allocation is accounted in.
type AllocationUnit string

// Known allocation units.
const (
	UnitNodeHours AllocationUnit = "node_hours"
	UnitBytes     AllocationUnit = "bytes"
	UnitInodes    AllocationUnit = "inodes"
)

// User is a user of the facility.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Capability is an allocatable aspect of one or more resources.
type Capability struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Units        []AllocationUnit `json:"units"`
	LastModified time.Time        `json:"last_modified"`
}

// Project is a project and its users at the facility.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	UserIDs     []string `json:"user_ids"`
}

// AllocationEntry is a budget and what has been spent against it.
type AllocationEntry struct {
	Allocation float64        `json:"allocation"`
	Usage      float64        `json:"usage"`
	Unit       AllocationUnit `json:"unit"`
}

// ProjectAllocation is a project's share of a capability.
type ProjectAllocation struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	CapabilityID string            `json:"capability_id"`
	Entries      []AllocationEntry `json:"entries"`
}

// UserAllocation is a user's share of a project allocation.
type UserAllocation struct {
	ID                  string            `json:"id"`
	ProjectAllocationID string            `json:"project_allocation_id"`
	UserID              string            `json:"user_id"`
	Entries             []AllocationEntry `json:"entries"`
}
