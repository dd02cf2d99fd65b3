// Package models defines the domain types for the quarterly survey export.
package models

import (
	"encoding/json"
	"time"
)

// InputType is the declared type of a template input.
type InputType string

const (
	InputBoolean   InputType = "boolean"
	InputInt       InputType = "int"
	InputEnum      InputType = "enum"
	InputMultiline InputType = "multiline"
)

// InputDef is one field definition on a template page.
type InputDef struct {
	ID        string    `json:"id" yaml:"id"`
	Type      InputType `json:"type" yaml:"type"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty"`
	Min       *int      `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *int      `json:"max,omitempty" yaml:"max,omitempty"`
	Options   []string  `json:"options,omitempty" yaml:"options,omitempty"`
	MaxLength *int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
}

// Page is an ordered group of inputs within a template.
type Page struct {
	ID     string     `json:"id" yaml:"id"`
	Kind   string     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Title  string     `json:"title,omitempty" yaml:"title,omitempty"`
	Inputs []InputDef `json:"inputs" yaml:"inputs"`
}

// Template is a published, immutable survey definition.
type Template struct {
	Version string `json:"version" yaml:"version"`
	Pages   []Page `json:"pages" yaml:"pages"`
}

// InputTypes returns the declared type for every "pageId.fieldId" column.
func (t *Template) InputTypes() map[string]InputType {
	out := make(map[string]InputType)
	if t == nil {
		return out
	}
	for _, p := range t.Pages {
		for _, in := range p.Inputs {
			if in.ID == "" {
				continue
			}
			out[p.ID+"."+in.ID] = in.Type
		}
	}
	return out
}

// Period is one reporting quarter instance.
type Period struct {
	ID              string    `json:"id"`
	OpensAt         time.Time `json:"opensAt"`
	ClosesAt        time.Time `json:"closesAt"`
	Active          bool      `json:"isActive"`
	TemplateVersion string    `json:"templateVersion"`
}

// StatusSubmitted marks a submission as final and eligible for export.
const StatusSubmitted = "submitted"

// Submission is one respondent's answers for one period.
// At most one exists per (RespondentID, PeriodID).
type Submission struct {
	RespondentID    string          `json:"respondentId"`
	PeriodID        string          `json:"periodId"`
	Status          string          `json:"status"`
	TemplateVersion string          `json:"templateVersion"`
	Answers         json.RawMessage `json:"answers,omitempty"`
	SubmittedAt     *time.Time      `json:"submittedAt,omitempty"`
	ExportedAt      *time.Time      `json:"exportedAt,omitempty"`
}

// Enrollment links a respondent to an organization.
type Enrollment struct {
	RespondentID string
	OrgID        string
	OrgName      string
	CreatedAt    time.Time
}

// Organization holds the descriptive attributes used for enrichment.
type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	Locality string `json:"locality"`
}
