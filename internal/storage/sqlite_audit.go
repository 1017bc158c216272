package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteAuditRepo struct {
	db *sql.DB
}

func (r *sqliteAuditRepo) Append(ctx context.Context, rec *models.AuditRecord) error {
	query := `
		INSERT INTO notification_audit (id, asset_id, asset_label, recipient,
			class, status, error_detail, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, nullString(rec.AssetID), rec.AssetLabel, rec.Recipient,
		string(rec.Class), string(rec.Status), nullString(rec.ErrorDetail),
		rec.SentAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// buildAuditWhere assembles the WHERE clause and args for a filter.
func buildAuditWhere(filter AuditFilter) (string, []any) {
	var conds []string
	var args []any

	if !filter.From.IsZero() {
		conds = append(conds, "sent_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "sent_at <= ?")
		args = append(args, filter.To)
	}
	if filter.Class != "" {
		conds = append(conds, "class = ?")
		args = append(args, string(filter.Class))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Recipient != "" {
		conds = append(conds, "recipient = ?")
		args = append(args, filter.Recipient)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *sqliteAuditRepo) Query(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, int64, error) {
	where, args := buildAuditWhere(filter)

	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notification_audit"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, asset_id, asset_label, recipient, class, status,
			error_detail, sent_at, created_at
		FROM notification_audit` + where + ` ORDER BY sent_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records, err := scanAuditRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, rows.Err()
}

func (r *sqliteAuditRepo) Stream(ctx context.Context, filter AuditFilter, fn func(*models.AuditRecord) error) error {
	where, args := buildAuditWhere(filter)

	query := `
		SELECT id, asset_id, asset_label, recipient, class, status,
			error_detail, sent_at, created_at
		FROM notification_audit` + where + ` ORDER BY sent_at ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stream audit records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanAuditRecords(rows *sql.Rows) ([]*models.AuditRecord, error) {
	var records []*models.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func scanAuditRecord(rows *sql.Rows) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{}
	var assetID, errorDetail sql.NullString
	err := rows.Scan(&rec.ID, &assetID, &rec.AssetLabel, &rec.Recipient,
		&rec.Class, &rec.Status, &errorDetail, &rec.SentAt, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan audit record: %w", err)
	}
	rec.AssetID = assetID.String
	rec.ErrorDetail = errorDetail.String
	return rec, nil
}
