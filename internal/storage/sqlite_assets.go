package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteAssetRepo struct {
	db *sql.DB
}

// severityRank orders severities in SQL so MAX() picks the worst one.
const severityRank = `CASE f.severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	ELSE 1 END`

func rankToSeverity(rank int) models.Severity {
	switch rank {
	case 4:
		return models.SeverityCritical
	case 3:
		return models.SeverityHigh
	case 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (r *sqliteAssetRepo) ListOverdue(ctx context.Context, cutoff time.Time, limit, offset int) ([]*models.OverdueAsset, error) {
	query := `
		SELECT a.id, a.label, a.owner_id,
			COUNT(f.id),
			MIN(f.detected_at),
			MAX(` + severityRank + `)
		FROM assets a
		JOIN findings f ON f.asset_id = a.id AND f.resolved_at IS NULL
		WHERE f.detected_at <= ?
		GROUP BY a.id, a.label, a.owner_id
		ORDER BY a.id
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list overdue assets: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var assets []*models.OverdueAsset
	for rows.Next() {
		a := &models.OverdueAsset{}
		var rank int
		if err := rows.Scan(&a.AssetID, &a.Label, &a.OwnerID, &a.FindingCount, &a.OldestOpen, &rank); err != nil {
			return nil, fmt.Errorf("scan overdue asset: %w", err)
		}
		a.Severity = rankToSeverity(rank)
		a.OverdueDays = int(now.Sub(a.OldestOpen).Hours() / 24)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *sqliteAssetRepo) ListNewFindings(ctx context.Context, ownerID string, since time.Time) ([]*models.Finding, error) {
	query := `
		SELECT f.id, f.asset_id, a.label, a.owner_id, f.title, f.severity, f.detected_at
		FROM findings f
		JOIN assets a ON a.id = f.asset_id
		WHERE a.owner_id = ? AND f.detected_at > ? AND f.resolved_at IS NULL
		ORDER BY f.detected_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("list new findings: %w", err)
	}
	defer rows.Close()

	var findings []*models.Finding
	for rows.Next() {
		f := &models.Finding{}
		if err := rows.Scan(&f.ID, &f.AssetID, &f.AssetLabel, &f.OwnerID, &f.Title, &f.Severity, &f.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (r *sqliteAssetRepo) CreateAsset(ctx context.Context, id, label, ownerID string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO assets (id, label, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, label, ownerID, now, now)
	if err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

func (r *sqliteAssetRepo) CreateFinding(ctx context.Context, f *models.Finding) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO findings (id, asset_id, title, severity, detected_at) VALUES (?, ?, ?, ?, ?)",
		f.ID, f.AssetID, f.Title, string(f.Severity), f.DetectedAt)
	if err != nil {
		return fmt.Errorf("create finding: %w", err)
	}
	return nil
}

func (r *sqliteAssetRepo) ResolveFinding(ctx context.Context, findingID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE findings SET resolved_at = ? WHERE id = ?", at, findingID)
	if err != nil {
		return fmt.Errorf("resolve finding: %w", err)
	}
	return nil
}
