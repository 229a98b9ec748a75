package facility

// SubDomain names one vertical slice of the API. The value doubles as the
// task router name and the adapter configuration key.
type SubDomain string

// Known sub-domains.
const (
	SubDomainStatus     SubDomain = "status"
	SubDomainAccount    SubDomain = "account"
	SubDomainCompute    SubDomain = "compute"
	SubDomainFilesystem SubDomain = "filesystem"
	SubDomainTask       SubDomain = "task"
	SubDomainFacility   SubDomain = "facility"
)

// SubDomains lists every sub-domain in route registration order.
func SubDomains() []SubDomain {
	return []SubDomain{
		SubDomainFacility,
		SubDomainStatus,
		SubDomainAccount,
		SubDomainCompute,
		SubDomainFilesystem,
		SubDomainTask,
	}
}

// Valid reports whether s is a known sub-domain.
func (s SubDomain) Valid() bool {
	for _, known := range SubDomains() {
		if s == known {
			return true
		}
	}
	return false
}
