package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

// GetExport returns the export record for a period or apperr.ErrNotFound.
func (db *DB) GetExport(ctx context.Context, periodID string) (*models.ExportRecord, error) {
	var (
		rec        models.ExportRecord
		headerJSON string
		filesJSON  sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT period_id, header, template_version, files, row_count, run_id, updated_at
		FROM exports WHERE period_id = ?
	`, periodID).Scan(&rec.PeriodID, &headerJSON, &rec.TemplateVersion, &filesJSON, &rec.Rows, &rec.RunID, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get export: %w", err)
	}
	if err := json.Unmarshal([]byte(headerJSON), &rec.Header); err != nil {
		return nil, fmt.Errorf("store: decode header: %w", err)
	}
	if filesJSON.Valid && filesJSON.String != "" {
		var m models.Manifest
		if err := json.Unmarshal([]byte(filesJSON.String), &m); err != nil {
			return nil, fmt.Errorf("store: decode manifest: %w", err)
		}
		rec.Files = &m
	}
	return &rec, nil
}

// PutExportHeader merges the memoized header into the period's export record,
// leaving any existing manifest untouched.
func (db *DB) PutExportHeader(ctx context.Context, periodID string, header []string, templateVersion string, at time.Time) error {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("store: encode header: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO exports (period_id, header, template_version, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(period_id) DO UPDATE SET
			header           = excluded.header,
			template_version = excluded.template_version,
			updated_at       = excluded.updated_at
	`, periodID, string(headerJSON), templateVersion, at.UTC())
	if err != nil {
		return fmt.Errorf("store: put export header: %w", err)
	}
	return nil
}

// PutExportManifest merges the manifest of a successful publish into the
// period's export record, leaving the memoized header untouched.
func (db *DB) PutExportManifest(ctx context.Context, periodID string, files models.Manifest, rows int, runID string, at time.Time) error {
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("store: encode manifest: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO exports (period_id, files, row_count, run_id, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(period_id) DO UPDATE SET
			files      = excluded.files,
			row_count  = excluded.row_count,
			run_id     = excluded.run_id,
			updated_at = excluded.updated_at
	`, periodID, string(filesJSON), rows, runID, at.UTC())
	if err != nil {
		return fmt.Errorf("store: put export manifest: %w", err)
	}
	return nil
}
