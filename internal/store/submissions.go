package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

const submissionCols = `respondent_id, period_id, status, template_version, answers, submitted_at, exported_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (*models.Submission, error) {
	var (
		s         models.Submission
		answers   string
		submitted sql.NullTime
		exported  sql.NullTime
	)
	if err := r.Scan(&s.RespondentID, &s.PeriodID, &s.Status, &s.TemplateVersion, &answers, &submitted, &exported); err != nil {
		return nil, err
	}
	s.Answers = []byte(answers)
	s.SubmittedAt = timePtr(submitted)
	s.ExportedAt = timePtr(exported)
	return &s, nil
}

// GetSubmission returns the submission keyed by respondent and period.
func (db *DB) GetSubmission(ctx context.Context, respondentID, periodID string) (*models.Submission, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE respondent_id = ? AND period_id = ?`,
		respondentID, periodID)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get submission: %w", err)
	}
	return s, nil
}

// UpsertSubmission writes a submission and returns the state it replaced
// (nil when the document is new). The exported marker is never overwritten
// here; it is owned by MarkExported.
func (db *DB) UpsertSubmission(ctx context.Context, s models.Submission) (*models.Submission, error) {
	if s.RespondentID == "" || s.PeriodID == "" {
		return nil, fmt.Errorf("store: submission key is required: %w", apperr.ErrInvalidInput)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := scanSubmission(tx.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE respondent_id = ? AND period_id = ?`,
		s.RespondentID, s.PeriodID))
	if errors.Is(err, sql.ErrNoRows) {
		prev = nil
	} else if err != nil {
		return nil, fmt.Errorf("store: read previous submission: %w", err)
	}

	answers := string(s.Answers)
	if strings.TrimSpace(answers) == "" {
		answers = "{}"
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO submissions (respondent_id, period_id, status, template_version, answers, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(respondent_id, period_id) DO UPDATE SET
			status           = excluded.status,
			template_version = excluded.template_version,
			answers          = excluded.answers,
			submitted_at     = excluded.submitted_at
	`, s.RespondentID, s.PeriodID, s.Status, s.TemplateVersion, answers, nullTime(s.SubmittedAt))
	if err != nil {
		return nil, fmt.Errorf("store: upsert submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit submission: %w", err)
	}
	return prev, nil
}

// SubmittedForPeriod returns every submitted record for the period across
// all respondents, ordered by submission time then respondent id so that
// row order is reproducible between rebuilds.
func (db *DB) SubmittedForPeriod(ctx context.Context, periodID string) ([]models.Submission, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+submissionCols+`
		FROM submissions
		WHERE period_id = ? AND lower(status) = ?
		ORDER BY submitted_at, respondent_id
	`, periodID, models.StatusSubmitted)
	if err != nil {
		return nil, fmt.Errorf("store: query submissions: %w", err)
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// MarkExported sets the exported marker if it is not already set.
// It reports whether the marker was written by this call.
func (db *DB) MarkExported(ctx context.Context, respondentID, periodID string, at time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE submissions SET exported_at = ?
		WHERE respondent_id = ? AND period_id = ? AND exported_at IS NULL
	`, at.UTC(), respondentID, periodID)
	if err != nil {
		return false, fmt.Errorf("store: mark exported: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark exported: %w", err)
	}
	return n > 0, nil
}
