package rows

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/funmi/casi-export/internal/anon"
	"github.com/funmi/casi-export/internal/answers"
	"github.com/funmi/casi-export/internal/enrich"
	"github.com/funmi/casi-export/internal/header"
	"github.com/funmi/casi-export/internal/models"
	"github.com/funmi/casi-export/internal/store"
	"github.com/funmi/casi-export/internal/testutil"
)

func newBuilder(t *testing.T, db *store.DB) (*Builder, *anon.Anonymizer) {
	t.Helper()
	a, err := anon.New("test-salt")
	if err != nil {
		t.Fatal(err)
	}
	return NewBuilder(a, enrich.New(db), header.NewResolver(db, db), db), a
}

func TestBuild_DogCaseloadScenario(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	if err := db.PutTemplate(ctx, testutil.DogCaseloadTemplate("v1"), false); err != nil {
		t.Fatal(err)
	}
	b, a := newBuilder(t, db)

	got, err := b.Build(ctx, Input{
		RespondentID:    "vet-42",
		Email:           "vet@example.com",
		PeriodID:        "2025-Q2",
		TemplateVersion: "v1",
		Answers:         answers.Decode([]byte(`{"dog_caseload": {"count": 7}}`)),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantHeader := []string{"anonId", "quarterId", "submittedAt", "templateVersion", "dog_caseload.count"}
	if diff := cmp.Diff(wantHeader, got.Header); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	token := a.Token("vet-42", "2025-Q2")
	wantData := []string{token, "2025-Q2", "", "v1", "7"}
	if diff := cmp.Diff(wantData, got.Data); diff != "" {
		t.Errorf("data row (-want +got):\n%s", diff)
	}
	if got.Key.AnonID != token {
		t.Errorf("key anonId = %q, want %q", got.Key.AnonID, token)
	}
}

func TestBuild_NoEnrollmentGivesEmptyOrgFields(t *testing.T) {
	db := testutil.TestDB(t)
	b, _ := newBuilder(t, db)

	got, err := b.Build(context.Background(), Input{RespondentID: "lonely", PeriodID: "2025-Q2", TemplateVersion: "v1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	fields := got.Key.Fields()
	if len(fields) != len(KeyHeader) {
		t.Fatalf("key row has %d fields, header has %d", len(fields), len(KeyHeader))
	}
	for i, name := range []string{"clinicId", "clinicName", "clinicProvince", "clinicCity"} {
		if v := fields[4+i]; v != "" {
			t.Errorf("%s = %q, want empty", name, v)
		}
	}
	if got.EnrichDegraded {
		t.Error("missing enrollment should not be reported as degraded")
	}
}

func TestBuild_DataRowHasNoIdentity(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	_ = db.PutTemplate(ctx, testutil.DogCaseloadTemplate("v1"), false)
	_ = db.AddEnrollment(ctx, models.Enrollment{RespondentID: "vet-42", OrgID: "clinic-9", OrgName: "Paws", CreatedAt: time.Now()})
	b, _ := newBuilder(t, db)

	submitted := time.Date(2025, 7, 3, 15, 4, 5, 0, time.FixedZone("CST", -6*3600))
	got, err := b.Build(ctx, Input{
		RespondentID:    "vet-42",
		Email:           "vet@example.com",
		PeriodID:        "2025-Q2",
		TemplateVersion: "v1",
		SubmittedAt:     &submitted,
		Answers:         answers.Decode([]byte(`{"dog_caseload": {"count": 3}}`)),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"vet-42", "vet@example.com", "clinic-9", "Paws"} {
		if slices.Contains(got.Data, secret) {
			t.Errorf("data row leaks %q: %q", secret, got.Data)
		}
		if !slices.Contains(got.Key.Fields(), secret) {
			t.Errorf("key row missing %q", secret)
		}
	}
	if got.Data[2] != "2025-07-03T21:04:05.000Z" {
		t.Errorf("submittedAt = %q", got.Data[2])
	}
}

func TestBuild_TypeMismatchLeavesCellEmpty(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	_ = db.PutTemplate(ctx, testutil.DogCaseloadTemplate("v1"), false)
	b, _ := newBuilder(t, db)

	got, err := b.Build(ctx, Input{
		RespondentID:    "r",
		PeriodID:        "2025-Q2",
		TemplateVersion: "v1",
		Answers:         answers.Decode([]byte(`{"dog_caseload": {"count": "lots", "stray": 1}}`)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Data) != 5 || got.Data[4] != "" {
		t.Errorf("data = %q, want empty count cell and no stray column", got.Data)
	}
}
