package models

import "time"

// NotificationClass identifies which message template and tone was used.
type NotificationClass string

const (
	// ClassReminder is the informational first-level owner reminder.
	ClassReminder NotificationClass = "reminder"
	// ClassEscalated is the urgent second-level reminder.
	ClassEscalated NotificationClass = "escalated"
	// ClassDigest is the opt-in new-finding digest.
	ClassDigest NotificationClass = "digest"
)

// ValidNotificationClass checks if a class value is valid.
func ValidNotificationClass(c NotificationClass) bool {
	switch c {
	case ClassReminder, ClassEscalated, ClassDigest:
		return true
	}
	return false
}

// DispatchStatus is the outcome of one delivery attempt.
type DispatchStatus string

const (
	StatusSent    DispatchStatus = "sent"
	StatusFailed  DispatchStatus = "failed"
	StatusPending DispatchStatus = "pending"
)

// AuditRecord is one append-only row per dispatch attempt. Asset label and
// recipient address are denormalized at send time so the record survives
// later deletion of the asset or owner. Records are never updated or
// deleted by the engine.
type AuditRecord struct {
	ID          string            `json:"id"`
	AssetID     string            `json:"asset_id,omitempty"` // empty for digest bundles spanning assets
	AssetLabel  string            `json:"asset_label"`
	Recipient   string            `json:"recipient"`
	Class       NotificationClass `json:"class"`
	Status      DispatchStatus    `json:"status"`
	ErrorDetail string            `json:"error_detail,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
	CreatedAt   time.Time         `json:"created_at"`
}
