package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

// PutUser records the mirrored account email for a respondent.
func (db *DB) PutUser(ctx context.Context, uid, email string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (uid, email) VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET email = excluded.email
	`, uid, email)
	if err != nil {
		return fmt.Errorf("store: put user: %w", err)
	}
	return nil
}

// Email returns the account email for a respondent.
func (db *DB) Email(ctx context.Context, uid string) (string, error) {
	var email string
	err := db.conn.QueryRowContext(ctx, `SELECT email FROM users WHERE uid = ?`, uid).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get email: %w", err)
	}
	return email, nil
}

// AddEnrollment appends an affiliation record for a respondent.
func (db *DB) AddEnrollment(ctx context.Context, e models.Enrollment) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO enrollments (respondent_id, org_id, org_name, created_at) VALUES (?, ?, ?, ?)
	`, e.RespondentID, e.OrgID, e.OrgName, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: add enrollment: %w", err)
	}
	return nil
}

// LatestEnrollment returns the most recently created affiliation record.
func (db *DB) LatestEnrollment(ctx context.Context, respondentID string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := db.conn.QueryRowContext(ctx, `
		SELECT respondent_id, org_id, org_name, created_at
		FROM enrollments WHERE respondent_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, respondentID).Scan(&e.RespondentID, &e.OrgID, &e.OrgName, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest enrollment: %w", err)
	}
	return &e, nil
}

// PutOrganization inserts or replaces an organization record.
func (db *DB) PutOrganization(ctx context.Context, o models.Organization) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO organizations (id, name, region, locality) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name     = excluded.name,
			region   = excluded.region,
			locality = excluded.locality
	`, o.ID, o.Name, o.Region, o.Locality)
	if err != nil {
		return fmt.Errorf("store: put organization: %w", err)
	}
	return nil
}

// GetOrganization returns an organization by id.
func (db *DB) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var o models.Organization
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, name, region, locality FROM organizations WHERE id = ?
	`, id).Scan(&o.ID, &o.Name, &o.Region, &o.Locality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get organization: %w", err)
	}
	return &o, nil
}
