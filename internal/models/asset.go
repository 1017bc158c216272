// Package models defines domain models for StaleGuard.
package models

import "time"

// Severity levels for findings attached to an asset.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverity checks if a severity value is valid.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// OverdueAsset is one entry from the outdated-item source: an asset whose
// unresolved findings exceed the remediation age threshold.
type OverdueAsset struct {
	AssetID      string    `json:"asset_id"`
	OwnerID      string    `json:"owner_id"`
	Label        string    `json:"label"`
	Severity     Severity  `json:"severity,omitempty"` // highest open finding severity, may be empty
	OverdueDays  int       `json:"overdue_days"`
	FindingCount int       `json:"finding_count"`
	OldestOpen   time.Time `json:"oldest_open,omitempty"`
}

// Finding is a single vulnerability finding on an asset, used by the
// opt-in digest path to report what is new since the owner's watermark.
type Finding struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	AssetLabel string    `json:"asset_label"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	Severity   Severity  `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// Owner is a responsible party resolvable to a contact address.
type Owner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"` // contact address, empty when unresolvable
}
