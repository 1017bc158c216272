package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqlitePreferenceRepo struct {
	db *sql.DB
}

func (r *sqlitePreferenceRepo) Get(ctx context.Context, ownerID string) (*models.OwnerPreference, error) {
	query := `
		SELECT owner_id, digest_enabled, last_digest_at, updated_at
		FROM owner_preferences WHERE owner_id = ?
	`
	pref := &models.OwnerPreference{}
	var enabled int
	var lastDigest sql.NullTime
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&pref.OwnerID, &enabled, &lastDigest, &pref.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner preference: %w", err)
	}
	pref.DigestEnabled = enabled != 0
	if lastDigest.Valid {
		t := lastDigest.Time
		pref.LastDigestAt = &t
	}
	return pref, nil
}

func (r *sqlitePreferenceRepo) Set(ctx context.Context, pref *models.OwnerPreference) error {
	query := `
		INSERT INTO owner_preferences (owner_id, digest_enabled, last_digest_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			digest_enabled = excluded.digest_enabled,
			last_digest_at = excluded.last_digest_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		pref.OwnerID, boolToInt(pref.DigestEnabled), nullTime(pref.LastDigestAt), pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set owner preference: %w", err)
	}
	return nil
}

func (r *sqlitePreferenceRepo) ListDigestEnabled(ctx context.Context) ([]*models.OwnerPreference, error) {
	query := `
		SELECT owner_id, digest_enabled, last_digest_at, updated_at
		FROM owner_preferences WHERE digest_enabled = 1 ORDER BY owner_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list digest-enabled owners: %w", err)
	}
	defer rows.Close()

	var prefs []*models.OwnerPreference
	for rows.Next() {
		pref := &models.OwnerPreference{}
		var enabled int
		var lastDigest sql.NullTime
		if err := rows.Scan(&pref.OwnerID, &enabled, &lastDigest, &pref.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owner preference: %w", err)
		}
		pref.DigestEnabled = enabled != 0
		if lastDigest.Valid {
			t := lastDigest.Time
			pref.LastDigestAt = &t
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func (r *sqlitePreferenceRepo) AdvanceWatermark(ctx context.Context, ownerID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE owner_preferences SET last_digest_at = ?, updated_at = ? WHERE owner_id = ?",
		at, at, ownerID)
	if err != nil {
		return fmt.Errorf("advance digest watermark: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance digest watermark: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("advance digest watermark: no preference row for owner %s", ownerID)
	}
	return nil
}
