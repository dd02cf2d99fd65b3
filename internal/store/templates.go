package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

// PutTemplate stores a template and its pages. Published templates are
// immutable, so an existing version is rejected with apperr.ErrConflict
// unless replace is set.
func (db *DB) PutTemplate(ctx context.Context, t models.Template, replace bool) error {
	if t.Version == "" {
		return fmt.Errorf("store: template version is required: %w", apperr.ErrInvalidInput)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM templates WHERE version = ?`, t.Version).Scan(&exists); err != nil {
		return fmt.Errorf("store: check template: %w", err)
	}
	if exists > 0 && !replace {
		return fmt.Errorf("store: template %s: %w", t.Version, apperr.ErrConflict)
	}

	order := make([]string, 0, len(t.Pages))
	for _, p := range t.Pages {
		order = append(order, p.ID)
	}
	orderJSON, _ := json.Marshal(order)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (version, page_order) VALUES (?, ?)
		ON CONFLICT(version) DO UPDATE SET page_order = excluded.page_order
	`, t.Version, string(orderJSON))
	if err != nil {
		return fmt.Errorf("store: upsert template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_pages WHERE version = ?`, t.Version); err != nil {
		return fmt.Errorf("store: clear pages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO template_pages (version, page_id, kind, title, inputs) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare page insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range t.Pages {
		inputs := p.Inputs
		if inputs == nil {
			inputs = []models.InputDef{}
		}
		inputsJSON, err := json.Marshal(inputs)
		if err != nil {
			return fmt.Errorf("store: encode inputs for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.Version, p.ID, p.Kind, p.Title, string(inputsJSON)); err != nil {
			return fmt.Errorf("store: insert page %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetTemplate loads a template with its pages in declared page order.
// Pages listed in the order but missing from the store are skipped.
func (db *DB) GetTemplate(ctx context.Context, version string) (*models.Template, error) {
	var orderJSON string
	err := db.conn.QueryRowContext(ctx, `SELECT page_order FROM templates WHERE version = ?`, version).Scan(&orderJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get template: %w", err)
	}
	var order []string
	if err := json.Unmarshal([]byte(orderJSON), &order); err != nil {
		return nil, fmt.Errorf("store: decode page order: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT page_id, kind, title, inputs FROM template_pages WHERE version = ?`, version)
	if err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]models.Page)
	for rows.Next() {
		var p models.Page
		var inputsJSON string
		if err := rows.Scan(&p.ID, &p.Kind, &p.Title, &inputsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputsJSON), &p.Inputs); err != nil {
			return nil, fmt.Errorf("store: decode inputs of %s/%s: %w", version, p.ID, err)
		}
		pages[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	t := &models.Template{Version: version}
	for _, id := range order {
		if p, ok := pages[id]; ok {
			t.Pages = append(t.Pages, p)
		}
	}
	return t, nil
}
