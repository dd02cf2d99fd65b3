// Package testutil provides shared test helpers for setting up stores and
// artifact folders.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/funmi/casi-export/internal/artifact"
	"github.com/funmi/casi-export/internal/models"
	"github.com/funmi/casi-export/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "casi-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFolder creates a temporary artifact root backed by the local file system.
func TestFolder(t *testing.T) (string, *artifact.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := artifact.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// DogCaseloadTemplate is a one-page template with a single integer input.
func DogCaseloadTemplate(version string) models.Template {
	return models.Template{
		Version: version,
		Pages: []models.Page{{
			ID:     "dog_caseload",
			Kind:   "census",
			Inputs: []models.InputDef{{ID: "count", Type: models.InputInt}},
		}},
	}
}

// MustSubmit stores a submitted record for respondent in period.
func MustSubmit(t *testing.T, db *store.DB, respondent, period, version, answers string, submittedAt *time.Time) {
	t.Helper()
	_, err := db.UpsertSubmission(context.Background(), models.Submission{
		RespondentID:    respondent,
		PeriodID:        period,
		Status:          models.StatusSubmitted,
		TemplateVersion: version,
		Answers:         []byte(answers),
		SubmittedAt:     submittedAt,
	})
	if err != nil {
		t.Fatalf("UpsertSubmission(%s, %s): %v", respondent, period, err)
	}
}
