package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
	"github.com/funmi/casi-export/internal/templates"
)

// Rebuild runs one export rebuild for periodID. Secrets required by the
// mode are checked before anything is opened.
func Rebuild(ctx context.Context, periodID string, upload bool, opts ...Option) (*export.Result, error) {
	app, logger, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	if err := app.config.ValidateForRebuild(upload); err != nil {
		return nil, err
	}

	db, svc, err := app.openStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return svc.Rebuild(ctx, periodID, export.Options{Upload: upload})
}

// ImportTemplate loads a template definition from path into the store.
// An existing version is only overwritten when replace is set.
func ImportTemplate(ctx context.Context, path string, replace bool, opts ...Option) (*models.Template, error) {
	app, logger, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	tmpl, err := templates.Load(path)
	if err != nil {
		return nil, err
	}

	db, _, err := app.openStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.PutTemplate(ctx, *tmpl, replace); err != nil {
		return nil, fmt.Errorf("import template %s: %w", tmpl.Version, err)
	}
	logger.Info("template imported",
		slog.String("version", tmpl.Version),
		slog.Int("pages", len(tmpl.Pages)),
		slog.Bool("replace", replace))
	return tmpl, nil
}

// Headers returns the data header of periodID, resolving it on first use.
func Headers(ctx context.Context, periodID string, opts ...Option) ([]string, error) {
	app, logger, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	db, svc, err := app.openStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return svc.ResolveHeader(ctx, periodID)
}

// PutPeriod creates or updates a period record.
func PutPeriod(ctx context.Context, p models.Period, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	db, _, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PutPeriod(ctx, p); err != nil {
		return err
	}
	logger.Info("period stored", slog.String("period", p.ID), slog.String("template", p.TemplateVersion))
	return nil
}
