package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

// PutPeriod inserts or replaces a period record.
func (db *DB) PutPeriod(ctx context.Context, p models.Period) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO periods (id, opens_at, closes_at, is_active, template_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			opens_at         = excluded.opens_at,
			closes_at        = excluded.closes_at,
			is_active        = excluded.is_active,
			template_version = excluded.template_version
	`, p.ID, p.OpensAt.UTC(), p.ClosesAt.UTC(), p.Active, p.TemplateVersion)
	if err != nil {
		return fmt.Errorf("store: put period: %w", err)
	}
	return nil
}

// GetPeriod returns the period with the given id or apperr.ErrNotFound.
func (db *DB) GetPeriod(ctx context.Context, id string) (*models.Period, error) {
	var p models.Period
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, opens_at, closes_at, is_active, template_version FROM periods WHERE id = ?
	`, id).Scan(&p.ID, &p.OpensAt, &p.ClosesAt, &p.Active, &p.TemplateVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get period: %w", err)
	}
	return &p, nil
}

// RecentPeriods returns up to limit periods, most recently opened first.
func (db *DB) RecentPeriods(ctx context.Context, limit int) ([]models.Period, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, opens_at, closes_at, is_active, template_version
		FROM periods ORDER BY opens_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent periods: %w", err)
	}
	defer rows.Close()

	var out []models.Period
	for rows.Next() {
		var p models.Period
		if err := rows.Scan(&p.ID, &p.OpensAt, &p.ClosesAt, &p.Active, &p.TemplateVersion); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
