// Package enrich resolves a respondent's organizational affiliation for the
// key file. Enrichment never fails an export: missing links yield empty
// fields and lookup failures are reported as degraded.
package enrich

import (
	"context"
	"errors"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/lookup"
	"github.com/funmi/casi-export/internal/models"
)

// Envelope is the organization data attached to a key row.
type Envelope struct {
	OrgID    string
	OrgName  string
	Region   string
	Locality string
}

// Source reads affiliation and organization records.
type Source interface {
	LatestEnrollment(ctx context.Context, respondentID string) (*models.Enrollment, error)
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
}

// Lookup resolves envelopes from a Source.
type Lookup struct {
	src Source
}

// New creates a Lookup.
func New(src Source) *Lookup {
	return &Lookup{src: src}
}

// Enrich returns the envelope for respondentID. The organization's canonical
// name is preferred over a name cached on the affiliation.
func (l *Lookup) Enrich(ctx context.Context, respondentID string) lookup.Result[Envelope] {
	var env Envelope

	enr, err := l.src.LatestEnrollment(ctx, respondentID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return lookup.OK(env)
	case err != nil:
		return lookup.Degrade(env, err)
	}
	env.OrgID = enr.OrgID
	env.OrgName = enr.OrgName
	if env.OrgID == "" {
		return lookup.OK(env)
	}

	org, err := l.src.GetOrganization(ctx, env.OrgID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return lookup.OK(env)
	case err != nil:
		return lookup.Degrade(env, err)
	}
	if org.Name != "" {
		env.OrgName = org.Name
	}
	env.Region = org.Region
	env.Locality = org.Locality
	return lookup.OK(env)
}
