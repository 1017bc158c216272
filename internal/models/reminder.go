package models

import "time"

// Reminder escalation levels.
const (
	LevelFirst     = 1 // initial reminder
	LevelEscalated = 2 // urgent reminder after the escalation window
)

// ReminderState is the persisted escalation state for one overdue asset.
// A row exists only while the asset is currently overdue; it is deleted on
// the run after the asset drops out of the overdue set, so a reappearing
// asset starts fresh at level 1.
type ReminderState struct {
	AssetID       string    `json:"asset_id"`
	Level         int       `json:"level"` // LevelFirst or LevelEscalated
	OutdatedSince time.Time `json:"outdated_since"`
	LastSentAt    time.Time `json:"last_sent_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// OwnerPreference is the per-owner opt-in for the new-finding digest.
// Absence of a row means the digest is disabled.
type OwnerPreference struct {
	OwnerID       string     `json:"owner_id"`
	DigestEnabled bool       `json:"digest_enabled"`
	LastDigestAt  *time.Time `json:"last_digest_at,omitempty"` // watermark, nil until the first successful digest
	UpdatedAt     time.Time  `json:"updated_at"`
}
