package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/funmi/casi-export/internal/anon"
	"github.com/funmi/casi-export/internal/answers"
	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/artifact"
	"github.com/funmi/casi-export/internal/checksum"
	"github.com/funmi/casi-export/internal/csvenc"
	"github.com/funmi/casi-export/internal/enrich"
	"github.com/funmi/casi-export/internal/header"
	"github.com/funmi/casi-export/internal/lookup"
	"github.com/funmi/casi-export/internal/models"
	"github.com/funmi/casi-export/internal/rows"
)

// Rebuild regenerates the export of periodID. Calls for the same period
// within this process run one after another, each collecting afresh; a
// run in another process holding the period lease makes Rebuild fail with
// apperr.ErrLeaseHeld.
func (s *Service) Rebuild(ctx context.Context, periodID string, opts Options) (*Result, error) {
	if periodID == "" {
		return nil, fmt.Errorf("export: period id is required: %w", apperr.ErrInvalidInput)
	}
	release, err := s.locks.acquire(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("export: wait for %s: %w", periodID, err)
	}
	defer release()
	return s.rebuild(ctx, periodID, opts)
}

// ResolveHeader returns the data header of periodID, resolving and
// persisting it on first use.
func (s *Service) ResolveHeader(ctx context.Context, periodID string) ([]string, error) {
	subs, err := s.db.SubmittedForPeriod(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("export: collect %s: %w", periodID, err)
	}
	version, err := s.templateVersion(ctx, periodID, subs)
	if err != nil {
		return nil, err
	}
	return header.NewResolver(s.db, s.db).WithClock(s.now).Resolve(ctx, periodID, version)
}

func (s *Service) preconditions(opts Options) (*anon.Anonymizer, error) {
	tok, err := anon.New(s.cfg.Salt)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if s.cfg.Password == "" {
		return nil, fmt.Errorf("export: archive password is not configured: %w", apperr.ErrConfig)
	}
	if opts.Upload {
		if s.remote == nil {
			return nil, fmt.Errorf("export: no upload folder configured: %w", apperr.ErrConfig)
		}
		if s.cfg.RawFolderID == "" || s.cfg.ZipFolderID == "" {
			return nil, fmt.Errorf("export: upload folder ids are not configured: %w", apperr.ErrConfig)
		}
	} else if s.local == nil {
		return nil, fmt.Errorf("export: no local output folder configured: %w", apperr.ErrConfig)
	}
	return tok, nil
}

func (s *Service) rebuild(ctx context.Context, periodID string, opts Options) (*Result, error) {
	runID := uuid.NewString()
	log := s.logger.With(slog.String("period", periodID), slog.String("run_id", runID))
	phase := func(p Phase, n int) {
		s.emit(Event{PeriodID: periodID, RunID: runID, Phase: p, Rows: n})
	}
	fail := func(err error) (*Result, error) {
		s.emit(Event{PeriodID: periodID, RunID: runID, Phase: PhaseFailed, Error: err.Error()})
		log.Error("export rebuild failed", slog.String("error", err.Error()))
		return nil, err
	}

	phase(PhaseIdle, 0)
	tok, err := s.preconditions(opts)
	if err != nil {
		return fail(err)
	}

	if err := s.db.AcquireLease(ctx, periodID, runID, s.now(), s.cfg.LeaseTTL); err != nil {
		return fail(fmt.Errorf("export: %s: %w", periodID, err))
	}
	defer func() {
		if err := s.db.ReleaseLease(context.WithoutCancel(ctx), periodID, runID); err != nil {
			log.Warn("release export lease", slog.String("error", err.Error()))
		}
	}()

	phase(PhaseCollecting, 0)
	subs, err := s.db.SubmittedForPeriod(ctx, periodID)
	if err != nil {
		return fail(fmt.Errorf("export: collect %s: %w", periodID, err))
	}
	version, err := s.templateVersion(ctx, periodID, subs)
	if err != nil {
		return fail(err)
	}

	phase(PhaseBuilding, len(subs))
	hdr, err := header.NewResolver(s.db, s.db).WithClock(s.now).Resolve(ctx, periodID, version)
	if err != nil {
		return fail(fmt.Errorf("export: %w", err))
	}
	builder := rows.NewBuilder(tok, enrich.New(s.db), fixedHeader(hdr), s.db)
	data := csvenc.NewBuffer(hdr)
	key := csvenc.NewBuffer(rows.KeyHeader)
	exportedAt := s.now().UTC()
	degraded := 0

	for _, sub := range subs {
		email := s.email(ctx, sub.RespondentID)
		v := sub.TemplateVersion
		if v == "" {
			v = version
		}
		r, err := builder.Build(ctx, rows.Input{
			RespondentID:    sub.RespondentID,
			Email:           email.Value,
			PeriodID:        periodID,
			TemplateVersion: v,
			SubmittedAt:     sub.SubmittedAt,
			Answers:         answers.Decode(sub.Answers),
		})
		if err != nil {
			return fail(fmt.Errorf("export: build row: %w", err))
		}
		data.Append(r.Data)
		key.Append(r.Key.Fields())

		if email.Degraded || r.EnrichDegraded {
			degraded++
			attrs := []any{slog.String("respondent", sub.RespondentID)}
			if email.Err != nil {
				attrs = append(attrs, slog.String("email_error", email.Err.Error()))
			}
			log.Warn("lookup degraded", attrs...)
		}

		if _, err := s.db.MarkExported(ctx, sub.RespondentID, periodID, exportedAt); err != nil {
			return fail(fmt.Errorf("export: mark exported: %w", err))
		}
	}

	res := &Result{
		PeriodID:        periodID,
		RunID:           runID,
		TemplateVersion: version,
		Header:          hdr,
		Rows:            data.Rows(),
		DataCSV:         data.Bytes(),
		KeyCSV:          key.Bytes(),
		Degraded:        degraded,
	}
	names := Names(s.cfg.Prefix, periodID)

	phase(PhasePackaging, res.Rows)
	if !opts.Upload {
		for _, f := range []struct {
			name    string
			content []byte
		}{
			{names.DataCSV, res.DataCSV},
			{names.KeyCSV, res.KeyCSV},
		} {
			file, err := publish(ctx, s.local, "", f.name, f.content, artifact.MimeCSV)
			if err != nil {
				return fail(fmt.Errorf("export: write local: %w", err))
			}
			res.Local = append(res.Local, file)
		}
		phase(PhaseDone, res.Rows)
		log.Info("export written locally",
			slog.Int("rows", res.Rows),
			slog.String("data_csv", res.Local[0].Link),
			slog.String("key_csv", res.Local[1].Link))
		return res, nil
	}

	dataZip, err := s.packager.Pack(names.DataCSV, res.DataCSV, s.cfg.Password)
	if err != nil {
		return fail(err)
	}
	keyZip, err := s.packager.Pack(names.KeyCSV, res.KeyCSV, s.cfg.Password)
	if err != nil {
		return fail(err)
	}

	phase(PhasePublishing, res.Rows)
	var m models.Manifest
	uploads := []struct {
		dst      *models.ArtifactFile
		location string
		name     string
		content  []byte
		mime     string
	}{
		{&m.DataCSV, s.cfg.RawFolderID, names.DataCSV, res.DataCSV, artifact.MimeCSV},
		{&m.KeyCSV, s.cfg.RawFolderID, names.KeyCSV, res.KeyCSV, artifact.MimeCSV},
		{&m.DataZip, s.cfg.ZipFolderID, names.DataZip, dataZip, artifact.MimeZip},
		{&m.KeyZip, s.cfg.ZipFolderID, names.KeyZip, keyZip, artifact.MimeZip},
	}
	for _, u := range uploads {
		file, err := publish(ctx, s.remote, u.location, u.name, u.content, u.mime)
		if err != nil {
			return fail(fmt.Errorf("export: publish: %w", err))
		}
		*u.dst = file
	}

	if err := s.db.PutExportManifest(ctx, periodID, m, res.Rows, runID, s.now().UTC()); err != nil {
		return fail(fmt.Errorf("export: write manifest: %w", err))
	}
	res.Files = &m

	phase(PhaseDone, res.Rows)
	log.Info("export published",
		slog.Int("rows", res.Rows),
		slog.Int("degraded", degraded),
		slog.String("data_csv", m.DataCSV.Link),
		slog.String("key_csv", m.KeyCSV.Link),
		slog.String("data_zip", m.DataZip.Link),
		slog.String("key_zip", m.KeyZip.Link))
	return res, nil
}

// templateVersion picks the version used to resolve the header: the first
// collected submission's, else the period's, else the configured default.
func (s *Service) templateVersion(ctx context.Context, periodID string, subs []models.Submission) (string, error) {
	if len(subs) > 0 && subs[0].TemplateVersion != "" {
		return subs[0].TemplateVersion, nil
	}
	p, err := s.db.GetPeriod(ctx, periodID)
	switch {
	case err == nil && p.TemplateVersion != "":
		return p.TemplateVersion, nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return "", fmt.Errorf("export: read period %s: %w", periodID, err)
	}
	return s.cfg.DefaultTemplate, nil
}

func (s *Service) email(ctx context.Context, uid string) lookup.Result[string] {
	if s.emails == nil {
		return lookup.OK("")
	}
	e, err := s.emails.Email(ctx, uid)
	switch {
	case err == nil:
		return lookup.OK(e)
	case errors.Is(err, apperr.ErrNotFound):
		return lookup.OK("")
	default:
		return lookup.Degrade("", err)
	}
}

func publish(ctx context.Context, f artifact.Folder, location, name string, content []byte, mime string) (models.ArtifactFile, error) {
	ref, err := artifact.Upsert(ctx, f, location, name, content, mime)
	if err != nil {
		return models.ArtifactFile{}, err
	}
	return models.ArtifactFile{
		ID:     ref.ID,
		Link:   ref.Link,
		Name:   name,
		SHA256: checksum.Sum(content),
		Size:   len(content),
	}, nil
}

// fixedHeader pins the header for the rows of one run.
type fixedHeader []string

func (h fixedHeader) Resolve(context.Context, string, string) ([]string, error) {
	return h, nil
}
