package model

// ComplianceStatus is the outcome of auditing one candidate reply.
type ComplianceStatus string

const (
	CompliancePassed  ComplianceStatus = "passed"
	ComplianceFlagged ComplianceStatus = "flagged"
	ComplianceBlocked ComplianceStatus = "blocked"
)

// ComplianceResult is produced once per candidate reply and never cached
// across contacts.
type ComplianceResult struct {
	Status     ComplianceStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Violations []string         `json:"violations,omitempty"`
}

// Blocked reports whether the reply must be replaced with the safe fallback.
func (r ComplianceResult) Blocked() bool { return r.Status == ComplianceBlocked }
