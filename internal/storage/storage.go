// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// ErrNoAddress is returned when an owner exists but has no contact address,
// or does not exist at all.
var ErrNoAddress = errors.New("owner has no resolvable address")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Reminders() ReminderRepository
	Preferences() PreferenceRepository
	Audit() AuditRepository
	Assets() AssetRepository
	Owners() OwnerRepository
}

// ReminderRepository defines operations for per-asset reminder state.
// The escalation engine is the only writer.
type ReminderRepository interface {
	// Get returns the state for an asset, or nil when no row exists.
	Get(ctx context.Context, assetID string) (*models.ReminderState, error)
	// Upsert creates or replaces the state row. Called only after a
	// confirmed dispatch so undelivered reminders are retried next run.
	Upsert(ctx context.Context, state *models.ReminderState) error
	// Touch updates last_checked_at on an existing row without advancing
	// any delivery-gated field.
	Touch(ctx context.Context, assetID string, at time.Time) error
	// ListAssetIDs returns all asset IDs with a state row.
	ListAssetIDs(ctx context.Context) ([]string, error)
	// Delete removes the state row for an asset no longer overdue.
	Delete(ctx context.Context, assetID string) error
	Count(ctx context.Context) (int64, error)
}

// PreferenceRepository defines operations for owner digest preferences.
// The preference flag is owned by the settings surface; the engine only
// reads it and advances the watermark after a successful digest send.
type PreferenceRepository interface {
	// Get returns the preference for an owner, or nil when no row exists
	// (absence means the digest is disabled).
	Get(ctx context.Context, ownerID string) (*models.OwnerPreference, error)
	// Set creates or replaces an owner's preference row.
	Set(ctx context.Context, pref *models.OwnerPreference) error
	// ListDigestEnabled returns all owners with the digest opt-in set.
	ListDigestEnabled(ctx context.Context) ([]*models.OwnerPreference, error)
	// AdvanceWatermark moves last_digest_at forward after a SENT digest.
	AdvanceWatermark(ctx context.Context, ownerID string, at time.Time) error
}

// AuditFilter narrows audit queries. Zero values mean "no filter".
type AuditFilter struct {
	From      time.Time
	To        time.Time
	Class     models.NotificationClass
	Status    models.DispatchStatus
	Recipient string
	Limit     int
	Offset    int
}

// AuditRepository defines operations for the append-only dispatch audit
// trail. Records are never updated or deleted by the engine.
type AuditRepository interface {
	Append(ctx context.Context, rec *models.AuditRecord) error
	// Query returns matching records newest first plus the total count.
	Query(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, int64, error)
	// Stream invokes fn for every matching record, oldest first, without
	// materializing the full result set. Used by the bulk export.
	Stream(ctx context.Context, filter AuditFilter, fn func(*models.AuditRecord) error) error
}

// AssetRepository is the outdated-item source boundary, backed by the
// surrounding system's asset and finding tables.
type AssetRepository interface {
	// ListOverdue returns assets with open findings detected on or before
	// cutoff, ordered by asset ID, paged by limit/offset.
	ListOverdue(ctx context.Context, cutoff time.Time, limit, offset int) ([]*models.OverdueAsset, error)
	// ListNewFindings returns an owner's open findings detected after
	// since, oldest first. Used by the digest path.
	ListNewFindings(ctx context.Context, ownerID string, since time.Time) ([]*models.Finding, error)

	// Write operations exist for seeding and tests; the engine itself
	// never mutates assets or findings.
	CreateAsset(ctx context.Context, id, label, ownerID string) error
	CreateFinding(ctx context.Context, f *models.Finding) error
	ResolveFinding(ctx context.Context, findingID string, at time.Time) error
}

// OwnerRepository is the owner-directory boundary.
type OwnerRepository interface {
	// ResolveAddress maps an owner ID to a contact address. Returns
	// ErrNoAddress when the owner is missing or has no address.
	ResolveAddress(ctx context.Context, ownerID string) (string, error)
	GetByID(ctx context.Context, ownerID string) (*models.Owner, error)
	Create(ctx context.Context, owner *models.Owner) error
}
