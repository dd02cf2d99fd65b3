package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/funmi/casi-export/internal"
	"github.com/funmi/casi-export/internal/models"
	pkgconfig "github.com/funmi/casi-export/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// oneShot returns the options for commands whose stdout carries results;
// logs go to stderr instead.
func oneShot(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func rebuild(ctx context.Context, cmd *cli.Command) error {
	opts, err := oneShot(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Rebuild(ctx, cmd.String("quarter"), cmd.Bool("upload"), opts...)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res.PeriodID, res.Rows, res.Files, res.Local)
}

func printResult(w io.Writer, period string, rows int, files *models.Manifest, local []models.ArtifactFile) error {
	if _, err := fmt.Fprintf(w, "%s: %d rows\n", period, rows); err != nil {
		return err
	}
	var out []models.ArtifactFile
	if files != nil {
		out = []models.ArtifactFile{files.DataCSV, files.KeyCSV, files.DataZip, files.KeyZip}
	} else {
		out = local
	}
	for _, f := range out {
		if _, err := fmt.Fprintf(w, "  %s\t%s\n", f.Name, f.Link); err != nil {
			return err
		}
	}
	return nil
}

func importTemplate(ctx context.Context, cmd *cli.Command) error {
	opts, err := oneShot(cmd)
	if err != nil {
		return err
	}
	tmpl, err := internal.ImportTemplate(ctx, cmd.String("file"), cmd.Bool("replace"), opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stdout, "imported template %s (%d pages)\n", tmpl.Version, len(tmpl.Pages))
	return err
}

func headers(ctx context.Context, cmd *cli.Command) error {
	opts, err := oneShot(cmd)
	if err != nil {
		return err
	}
	cols, err := internal.Headers(ctx, cmd.String("quarter"), opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, strings.Join(cols, ","))
	return err
}

func period(ctx context.Context, cmd *cli.Command) error {
	opts, err := oneShot(cmd)
	if err != nil {
		return err
	}
	p := models.Period{
		ID:              cmd.String("id"),
		Active:          cmd.Bool("active"),
		TemplateVersion: cmd.String("template"),
	}
	if p.OpensAt, err = time.Parse(time.DateOnly, cmd.String("opens")); err != nil {
		return fmt.Errorf("--opens: %w", err)
	}
	if p.ClosesAt, err = time.Parse(time.DateOnly, cmd.String("closes")); err != nil {
		return fmt.Errorf("--closes: %w", err)
	}
	return internal.PutPeriod(ctx, p, opts...)
}

func quarterFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "quarter",
		Aliases:  []string{"q"},
		Usage:    "Period identifier, e.g. 2025-Q2",
		Required: true,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "casi-export",
		Usage: "Quarterly survey export: anonymized data file, re-identification key and encrypted archives",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, submission inbox and nightly rebuild",
				Action: serve,
			},
			{
				Name:   "rebuild",
				Usage:  "Rebuild the export of one period",
				Action: rebuild,
				Flags: []cli.Flag{
					quarterFlag(),
					&cli.BoolFlag{
						Name:  "upload",
						Usage: "Publish the CSVs and encrypted archives instead of writing local files",
					},
				},
			},
			{
				Name:   "import-template",
				Usage:  "Load a template definition from YAML",
				Action: importTemplate,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Template YAML file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "Overwrite an existing template version",
					},
				},
			},
			{
				Name:   "headers",
				Usage:  "Print the data header of a period",
				Action: headers,
				Flags:  []cli.Flag{quarterFlag()},
			},
			{
				Name:   "period",
				Usage:  "Create or update a period record",
				Action: period,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Period identifier", Required: true},
					&cli.StringFlag{Name: "opens", Usage: "Opening date (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "closes", Usage: "Closing date (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "template", Usage: "Template version", Value: "v1"},
					&cli.BoolFlag{Name: "active", Usage: "Mark the period active"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "casi-export: %v\n", err)
		os.Exit(1)
	}
}
