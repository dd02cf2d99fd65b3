package api

import (
	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
)

// RebuildResponse summarizes a finished rebuild.
type RebuildResponse struct {
	PeriodID        string                `json:"periodId"`
	RunID           string                `json:"runId"`
	TemplateVersion string                `json:"templateVersion"`
	Header          []string              `json:"header"`
	Rows            int                   `json:"rows"`
	Degraded        int                   `json:"degraded"`
	Files           *models.Manifest      `json:"files,omitempty"`
	Local           []models.ArtifactFile `json:"local,omitempty"`
}

func newRebuildResponse(res *export.Result) RebuildResponse {
	return RebuildResponse{
		PeriodID:        res.PeriodID,
		RunID:           res.RunID,
		TemplateVersion: res.TemplateVersion,
		Header:          res.Header,
		Rows:            res.Rows,
		Degraded:        res.Degraded,
		Files:           res.Files,
		Local:           res.Local,
	}
}

// ExportRecord is the persisted export state of a period.
type ExportRecord = models.ExportRecord
