// Package rows builds the aligned data and key rows for one submission.
package rows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/funmi/casi-export/internal/answers"
	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/enrich"
	"github.com/funmi/casi-export/internal/header"
	"github.com/funmi/casi-export/internal/lookup"
	"github.com/funmi/casi-export/internal/models"
)

// KeyHeader is the fixed key-file header. It does not depend on the template
// version, so the re-identification format never changes.
var KeyHeader = []string{
	"anonId",
	"uid",
	"email",
	"quarterId",
	"clinicId",
	"clinicName",
	"clinicProvince",
	"clinicCity",
}

// TimestampLayout renders submission times in the data file.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Tokenizer derives anonymized identifiers.
type Tokenizer interface {
	Token(respondentID, periodID string) string
}

// HeaderResolver returns the data header for a period.
type HeaderResolver interface {
	Resolve(ctx context.Context, periodID, templateVersion string) ([]string, error)
}

// Enricher resolves organization data for the key row.
type Enricher interface {
	Enrich(ctx context.Context, respondentID string) lookup.Result[enrich.Envelope]
}

// Templates loads template definitions for answer type validation.
type Templates interface {
	GetTemplate(ctx context.Context, version string) (*models.Template, error)
}

// Input is one submission to be rendered.
type Input struct {
	RespondentID    string
	Email           string
	PeriodID        string
	TemplateVersion string
	SubmittedAt     *time.Time
	Answers         map[string]any
}

// KeyRow is the identifying row written to the key file.
type KeyRow struct {
	AnonID       string
	RespondentID string
	Email        string
	PeriodID     string
	OrgID        string
	OrgName      string
	Region       string
	Locality     string
}

// Fields returns the key row in KeyHeader order.
func (k KeyRow) Fields() []string {
	return []string{k.AnonID, k.RespondentID, k.Email, k.PeriodID, k.OrgID, k.OrgName, k.Region, k.Locality}
}

// Rows is the pair of rows produced for one submission.
type Rows struct {
	Header []string
	Data   []string
	Key    KeyRow
	// EnrichDegraded is set when the organization lookup failed rather
	// than found nothing.
	EnrichDegraded bool
}

// Builder combines the anonymizer, enrichment, header and flattener.
// A Builder caches template types and is meant to live for one rebuild.
type Builder struct {
	tokens    Tokenizer
	enricher  Enricher
	headers   HeaderResolver
	templates Templates
	types     map[string]map[string]models.InputType
}

// NewBuilder creates a Builder. templates may be nil, in which case answers
// are not validated against declared input types.
func NewBuilder(tokens Tokenizer, enricher Enricher, headers HeaderResolver, templates Templates) *Builder {
	return &Builder{
		tokens:    tokens,
		enricher:  enricher,
		headers:   headers,
		templates: templates,
		types:     make(map[string]map[string]models.InputType),
	}
}

// Build renders the data and key rows for in. The data row has exactly one
// cell per header column and never carries identifying fields.
func (b *Builder) Build(ctx context.Context, in Input) (*Rows, error) {
	anonID := b.tokens.Token(in.RespondentID, in.PeriodID)
	env := b.enricher.Enrich(ctx, in.RespondentID)

	hdr, err := b.headers.Resolve(ctx, in.PeriodID, in.TemplateVersion)
	if err != nil {
		return nil, err
	}
	types, err := b.inputTypes(ctx, in.TemplateVersion)
	if err != nil {
		return nil, err
	}
	flat := answers.FlattenTyped(in.Answers, types)

	submitted := ""
	if in.SubmittedAt != nil && !in.SubmittedAt.IsZero() {
		submitted = in.SubmittedAt.UTC().Format(TimestampLayout)
	}

	data := make([]string, len(hdr))
	for i, col := range hdr {
		switch col {
		case header.ColAnonID:
			data[i] = anonID
		case header.ColPeriodID:
			data[i] = in.PeriodID
		case header.ColSubmittedAt:
			data[i] = submitted
		case header.ColTemplateVersion:
			data[i] = in.TemplateVersion
		default:
			data[i] = flat[col].Text()
		}
	}

	return &Rows{
		Header: hdr,
		Data:   data,
		Key: KeyRow{
			AnonID:       anonID,
			RespondentID: in.RespondentID,
			Email:        in.Email,
			PeriodID:     in.PeriodID,
			OrgID:        env.Value.OrgID,
			OrgName:      env.Value.OrgName,
			Region:       env.Value.Region,
			Locality:     env.Value.Locality,
		},
		EnrichDegraded: env.Degraded,
	}, nil
}

func (b *Builder) inputTypes(ctx context.Context, version string) (map[string]models.InputType, error) {
	if b.templates == nil {
		return nil, nil
	}
	if t, ok := b.types[version]; ok {
		return t, nil
	}
	tmpl, err := b.templates.GetTemplate(ctx, version)
	if errors.Is(err, apperr.ErrNotFound) {
		tmpl = nil
	} else if err != nil {
		return nil, fmt.Errorf("rows: load template %s: %w", version, err)
	}
	types := tmpl.InputTypes()
	b.types[version] = types
	return types, nil
}
