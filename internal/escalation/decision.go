// Package escalation decides, per overdue asset, whether an owner
// notification is due and at which reminder level.
package escalation

import (
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Action is the outcome of evaluating one overdue asset.
type Action string

const (
	// ActionNotifyLevel1 sends the initial reminder.
	ActionNotifyLevel1 Action = "notify_level_1"
	// ActionNotifyLevel2 sends the escalated reminder.
	ActionNotifyLevel2 Action = "notify_level_2"
	// ActionSkipAlreadySent suppresses a duplicate within a calendar day.
	ActionSkipAlreadySent Action = "skip_already_sent"
	// ActionSkipNoOwner suppresses an asset whose owner has no address.
	ActionSkipNoOwner Action = "skip_no_owner"
)

// Notifies reports whether the action results in an outbound message.
func (a Action) Notifies() bool {
	return a == ActionNotifyLevel1 || a == ActionNotifyLevel2
}

// Decision pairs an overdue asset with its evaluated action. Pending holds
// the reminder-state row to persist once the message is confirmed sent; it
// is nil for skip actions. Address is resolved for notify actions only.
type Decision struct {
	Asset   *models.OverdueAsset
	Action  Action
	Address string
	Pending *models.ReminderState
}

// Class maps a notify action to its notification class.
func (d *Decision) Class() models.NotificationClass {
	if d.Action == ActionNotifyLevel2 {
		return models.ClassEscalated
	}
	return models.ClassReminder
}

// DigestDecision is one owner's pending new-finding digest: everything
// detected since the owner's watermark, to be sent as a single message.
type DigestDecision struct {
	OwnerID  string
	Address  string
	Findings []*models.Finding
	// Watermark is the cutoff for this digest, advanced only after a
	// confirmed send.
	Watermark time.Time
}

// sameCalendarDay reports whether two instants fall on the same calendar
// day in the given zone.
func sameCalendarDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
