// Package trigger starts rebuilds in response to submission writes and on a
// nightly schedule.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
)

// Rebuilder runs export rebuilds.
type Rebuilder interface {
	Rebuild(ctx context.Context, periodID string, opts export.Options) (*export.Result, error)
}

// SubmissionStore persists submissions and their exported marker.
type SubmissionStore interface {
	UpsertSubmission(ctx context.Context, s models.Submission) (*models.Submission, error)
	MarkExported(ctx context.Context, respondentID, periodID string, at time.Time) (bool, error)
}

// SubmissionDoc is the JSON form of a submission write.
type SubmissionDoc struct {
	RespondentID    string          `json:"respondentId"`
	PeriodID        string          `json:"periodId"`
	Status          string          `json:"status"`
	TemplateVersion string          `json:"templateVersion"`
	Answers         json.RawMessage `json:"answers"`
	SubmittedAt     *time.Time      `json:"submittedAt"`
}

// Submission converts the document into a store record.
func (d SubmissionDoc) Submission() (models.Submission, error) {
	if d.RespondentID == "" || d.PeriodID == "" {
		return models.Submission{}, fmt.Errorf("trigger: respondentId and periodId are required: %w", apperr.ErrInvalidInput)
	}
	return models.Submission{
		RespondentID:    d.RespondentID,
		PeriodID:        d.PeriodID,
		Status:          d.Status,
		TemplateVersion: d.TemplateVersion,
		Answers:         d.Answers,
		SubmittedAt:     d.SubmittedAt,
	}, nil
}

// ShouldRebuild reports whether writing next over prev starts a rebuild:
// next must be submitted, and a record that was already submitted and
// exported does not trigger again.
func ShouldRebuild(prev *models.Submission, next models.Submission) bool {
	if !isSubmitted(next.Status) {
		return false
	}
	if prev != nil && isSubmitted(prev.Status) && prev.ExportedAt != nil {
		return false
	}
	return true
}

func isSubmitted(status string) bool {
	return strings.EqualFold(status, models.StatusSubmitted)
}

// Writes applies submission writes and runs the publishing rebuild they
// call for.
type Writes struct {
	store     SubmissionStore
	rebuilder Rebuilder
	logger    *slog.Logger
	now       func() time.Time

	// attempts and leaseWait bound the retries while another process
	// holds the period lease.
	attempts  int
	leaseWait time.Duration
}

// NewWrites creates a write handler.
func NewWrites(store SubmissionStore, rebuilder Rebuilder, logger *slog.Logger) *Writes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writes{
		store:     store,
		rebuilder: rebuilder,
		logger:    logger,
		now:       time.Now,
		attempts:  6,
		leaseWait: 5 * time.Second,
	}
}

// Apply stores s and, when ShouldRebuild holds, rebuilds and publishes its
// period and marks s exported. It reports whether a rebuild ran.
func (h *Writes) Apply(ctx context.Context, s models.Submission) (bool, error) {
	prev, err := h.store.UpsertSubmission(ctx, s)
	if err != nil {
		return false, fmt.Errorf("trigger: store submission: %w", err)
	}
	if !ShouldRebuild(prev, s) {
		h.logger.Debug("submission write: no rebuild",
			slog.String("period", s.PeriodID),
			slog.String("status", s.Status))
		return false, nil
	}

	res, err := h.rebuild(ctx, s.PeriodID)
	if err != nil {
		return false, fmt.Errorf("trigger: rebuild %s: %w", s.PeriodID, err)
	}
	if _, err := h.store.MarkExported(ctx, s.RespondentID, s.PeriodID, h.now().UTC()); err != nil {
		return true, fmt.Errorf("trigger: mark exported: %w", err)
	}
	h.logger.Info("submission write: export rebuilt",
		slog.String("period", s.PeriodID),
		slog.Int("rows", res.Rows),
		slog.String("run_id", res.RunID))
	return true, nil
}

// rebuild runs a publishing rebuild that starts after the write was stored,
// waiting out a lease held by another process.
func (h *Writes) rebuild(ctx context.Context, periodID string) (*export.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := h.rebuilder.Rebuild(ctx, periodID, export.Options{Upload: true})
		if err == nil || !errors.Is(err, apperr.ErrLeaseHeld) || attempt >= h.attempts {
			return res, err
		}
		h.logger.Info("export lease held, retrying",
			slog.String("period", periodID),
			slog.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.leaseWait):
		}
	}
}
