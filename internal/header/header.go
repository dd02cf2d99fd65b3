// Package header derives and memoizes the ordered data-file columns for a period.
package header

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/models"
)

// Base columns lead every data file, ahead of the template-derived columns.
const (
	ColAnonID          = "anonId"
	ColPeriodID        = "quarterId"
	ColSubmittedAt     = "submittedAt"
	ColTemplateVersion = "templateVersion"
)

// BaseColumns returns the fixed leading columns in order.
func BaseColumns() []string {
	return []string{ColAnonID, ColPeriodID, ColSubmittedAt, ColTemplateVersion}
}

// Records reads and merges per-period export records.
type Records interface {
	GetExport(ctx context.Context, periodID string) (*models.ExportRecord, error)
	PutExportHeader(ctx context.Context, periodID string, header []string, templateVersion string, at time.Time) error
}

// Templates loads published template definitions.
type Templates interface {
	GetTemplate(ctx context.Context, version string) (*models.Template, error)
}

// Resolver resolves the header for a period once and reuses the persisted
// copy afterwards, so template edits after a period opens do not shift columns.
type Resolver struct {
	records   Records
	templates Templates
	now       func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(records Records, templates Templates) *Resolver {
	return &Resolver{records: records, templates: templates, now: time.Now}
}

// WithClock overrides the clock used to stamp persisted headers.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve returns the persisted header for periodID, computing and persisting
// it from templateVersion when absent. A missing template yields the base
// columns only.
func (r *Resolver) Resolve(ctx context.Context, periodID, templateVersion string) ([]string, error) {
	rec, err := r.records.GetExport(ctx, periodID)
	switch {
	case err == nil && len(rec.Header) > 0:
		return rec.Header, nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("header: read export record: %w", err)
	}

	tmpl, err := r.templates.GetTemplate(ctx, templateVersion)
	if errors.Is(err, apperr.ErrNotFound) {
		tmpl = nil
	} else if err != nil {
		return nil, fmt.Errorf("header: load template %s: %w", templateVersion, err)
	}

	header := append(BaseColumns(), Columns(tmpl)...)
	if err := r.records.PutExportHeader(ctx, periodID, header, templateVersion, r.now()); err != nil {
		return nil, fmt.Errorf("header: persist: %w", err)
	}
	return header, nil
}

// Columns lists "pageId.fieldId" for every input with a non-empty id, in
// page order then input order.
func Columns(t *models.Template) []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, p := range t.Pages {
		for _, in := range p.Inputs {
			if in.ID == "" {
				continue
			}
			out = append(out, p.ID+"."+in.ID)
		}
	}
	return out
}
