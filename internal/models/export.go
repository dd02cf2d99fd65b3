package models

import "time"

// ArtifactFile is one published artifact referenced by an export manifest.
type ArtifactFile struct {
	ID     string `json:"id"`
	Link   string `json:"link"`
	Name   string `json:"name"`
	SHA256 string `json:"sha256,omitempty"`
	Size   int    `json:"size,omitempty"`
}

// Manifest lists the four artifacts produced by a publishing rebuild.
type Manifest struct {
	DataCSV ArtifactFile `json:"dataCsv"`
	KeyCSV  ArtifactFile `json:"keyCsv"`
	DataZip ArtifactFile `json:"dataZip"`
	KeyZip  ArtifactFile `json:"keyZip"`
}

// ExportRecord is the per-period export state: the memoized header and
// the manifest of the latest successful publish.
type ExportRecord struct {
	PeriodID        string    `json:"periodId"`
	Header          []string  `json:"header"`
	TemplateVersion string    `json:"templateVersion"`
	Files           *Manifest `json:"files,omitempty"`
	Rows            int       `json:"rows"`
	RunID           string    `json:"runId,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
