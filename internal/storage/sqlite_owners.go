package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

type sqliteOwnerRepo struct {
	db *sql.DB
}

func (r *sqliteOwnerRepo) ResolveAddress(ctx context.Context, ownerID string) (string, error) {
	var address sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT address FROM owners WHERE id = ?", ownerID).Scan(&address)
	if err == sql.ErrNoRows {
		return "", ErrNoAddress
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner address: %w", err)
	}
	if !address.Valid || address.String == "" {
		return "", ErrNoAddress
	}
	return address.String, nil
}

func (r *sqliteOwnerRepo) GetByID(ctx context.Context, ownerID string) (*models.Owner, error) {
	owner := &models.Owner{}
	var address sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, address FROM owners WHERE id = ?", ownerID).Scan(
		&owner.ID, &owner.Name, &address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	owner.Address = address.String
	return owner, nil
}

func (r *sqliteOwnerRepo) Create(ctx context.Context, owner *models.Owner) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO owners (id, name, address, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		owner.ID, owner.Name, nullString(owner.Address), now, now)
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}
