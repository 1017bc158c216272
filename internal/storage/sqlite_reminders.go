package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteReminderRepo struct {
	db *sql.DB
}

func (r *sqliteReminderRepo) Get(ctx context.Context, assetID string) (*models.ReminderState, error) {
	query := `
		SELECT asset_id, level, outdated_since, last_sent_at, last_checked_at
		FROM reminder_state WHERE asset_id = ?
	`
	state := &models.ReminderState{}
	err := r.db.QueryRowContext(ctx, query, assetID).Scan(
		&state.AssetID, &state.Level, &state.OutdatedSince,
		&state.LastSentAt, &state.LastCheckedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder state: %w", err)
	}
	return state, nil
}

func (r *sqliteReminderRepo) Upsert(ctx context.Context, state *models.ReminderState) error {
	query := `
		INSERT INTO reminder_state (asset_id, level, outdated_since, last_sent_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			level = excluded.level,
			outdated_since = excluded.outdated_since,
			last_sent_at = excluded.last_sent_at,
			last_checked_at = excluded.last_checked_at
	`
	_, err := r.db.ExecContext(ctx, query,
		state.AssetID, state.Level, state.OutdatedSince,
		state.LastSentAt, state.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reminder state: %w", err)
	}
	return nil
}

func (r *sqliteReminderRepo) Touch(ctx context.Context, assetID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE reminder_state SET last_checked_at = ? WHERE asset_id = ?", at, assetID)
	if err != nil {
		return fmt.Errorf("touch reminder state: %w", err)
	}
	return nil
}

func (r *sqliteReminderRepo) ListAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT asset_id FROM reminder_state ORDER BY asset_id")
	if err != nil {
		return nil, fmt.Errorf("list reminder asset ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reminder asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sqliteReminderRepo) Delete(ctx context.Context, assetID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM reminder_state WHERE asset_id = ?", assetID)
	if err != nil {
		return fmt.Errorf("delete reminder state: %w", err)
	}
	return nil
}

func (r *sqliteReminderRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminder_state").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reminder state: %w", err)
	}
	return count, nil
}
