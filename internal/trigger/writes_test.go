package trigger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
	"github.com/funmi/casi-export/internal/testutil"
)

type recordingRebuilder struct {
	mu      sync.Mutex
	periods []string
	fail    map[string]error
	done    chan string
}

func (r *recordingRebuilder) Rebuild(_ context.Context, periodID string, opts export.Options) (*export.Result, error) {
	r.mu.Lock()
	r.periods = append(r.periods, periodID)
	r.mu.Unlock()
	if r.done != nil {
		select {
		case r.done <- periodID:
		default:
		}
	}
	if !opts.Upload {
		return nil, errors.New("expected a publishing rebuild")
	}
	if err := r.fail[periodID]; err != nil {
		return nil, err
	}
	return &export.Result{PeriodID: periodID, RunID: "run"}, nil
}

func (r *recordingRebuilder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.periods...)
}

func TestShouldRebuild(t *testing.T) {
	exported := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		prev *models.Submission
		next string
		want bool
	}{
		{"first submit", nil, "submitted", true},
		{"case insensitive", nil, "Submitted", true},
		{"draft", nil, "draft", false},
		{"draft to submitted", &models.Submission{Status: "draft"}, "submitted", true},
		{"resubmit not yet exported", &models.Submission{Status: "submitted"}, "submitted", true},
		{"resubmit already exported", &models.Submission{Status: "submitted", ExportedAt: &exported}, "submitted", false},
		{"reopened then submitted", &models.Submission{Status: "draft", ExportedAt: &exported}, "submitted", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRebuild(tt.prev, models.Submission{Status: tt.next}); got != tt.want {
				t.Errorf("ShouldRebuild = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWritesApply(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	rb := &recordingRebuilder{}
	h := NewWrites(db, rb, nil)

	draft := models.Submission{RespondentID: "vet-1", PeriodID: "2025-Q2", Status: "draft", Answers: []byte(`{}`)}
	ran, err := h.Apply(ctx, draft)
	if err != nil || ran {
		t.Fatalf("draft: ran=%v err=%v", ran, err)
	}

	submitted := draft
	submitted.Status = models.StatusSubmitted
	ran, err = h.Apply(ctx, submitted)
	if err != nil || !ran {
		t.Fatalf("submit: ran=%v err=%v", ran, err)
	}
	sub, err := db.GetSubmission(ctx, "vet-1", "2025-Q2")
	if err != nil {
		t.Fatal(err)
	}
	if sub.ExportedAt == nil {
		t.Fatal("submission not marked exported")
	}

	ran, err = h.Apply(ctx, submitted)
	if err != nil || ran {
		t.Fatalf("resubmit: ran=%v err=%v", ran, err)
	}
	if got := rb.calls(); len(got) != 1 || got[0] != "2025-Q2" {
		t.Errorf("rebuilds = %v", got)
	}
}

func TestWritesApply_RebuildFailureLeavesUnexported(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	rb := &recordingRebuilder{fail: map[string]error{"2025-Q2": apperr.ErrConfig}}
	h := NewWrites(db, rb, nil)

	_, err := h.Apply(ctx, models.Submission{RespondentID: "vet-1", PeriodID: "2025-Q2", Status: "submitted"})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	sub, err := db.GetSubmission(ctx, "vet-1", "2025-Q2")
	if err != nil {
		t.Fatal(err)
	}
	if sub.ExportedAt != nil {
		t.Error("marked exported despite failed rebuild")
	}
}

func TestSubmissionDocRequiresIdentity(t *testing.T) {
	if _, err := (SubmissionDoc{PeriodID: "2025-Q2"}).Submission(); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

type leaseHeldRebuilder struct {
	held  int
	calls int
}

func (r *leaseHeldRebuilder) Rebuild(_ context.Context, periodID string, _ export.Options) (*export.Result, error) {
	r.calls++
	if r.calls <= r.held {
		return nil, fmt.Errorf("export: %s: %w", periodID, apperr.ErrLeaseHeld)
	}
	return &export.Result{PeriodID: periodID, RunID: "run"}, nil
}

func TestWritesApply_WaitsOutForeignLease(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	rb := &leaseHeldRebuilder{held: 2}
	h := NewWrites(db, rb, nil)
	h.leaseWait = time.Millisecond

	ran, err := h.Apply(ctx, models.Submission{RespondentID: "vet-1", PeriodID: "2025-Q2", Status: "submitted"})
	if err != nil || !ran {
		t.Fatalf("Apply: ran=%v err=%v", ran, err)
	}
	if rb.calls != 3 {
		t.Errorf("rebuild calls = %d, want 3", rb.calls)
	}

	rb = &leaseHeldRebuilder{held: 100}
	h = NewWrites(db, rb, nil)
	h.leaseWait = time.Millisecond
	_, err = h.Apply(ctx, models.Submission{RespondentID: "vet-2", PeriodID: "2025-Q2", Status: "submitted"})
	if !errors.Is(err, apperr.ErrLeaseHeld) {
		t.Fatalf("err = %v, want ErrLeaseHeld", err)
	}
	if rb.calls != h.attempts {
		t.Errorf("rebuild calls = %d, want %d", rb.calls, h.attempts)
	}
}

// gatedEmails blocks the first lookup for one respondent until released.
type gatedEmails struct {
	uid      string
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (g *gatedEmails) Email(_ context.Context, uid string) (string, error) {
	if uid == g.uid {
		g.once.Do(func() {
			close(g.entered)
			<-g.released
		})
	}
	return "", apperr.ErrNotFound
}

func TestWritesApply_WriteDuringRunningRebuildIsPublished(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	root, folder := testutil.TestFolder(t)
	if err := db.PutTemplate(ctx, testutil.DogCaseloadTemplate("v1"), false); err != nil {
		t.Fatal(err)
	}
	testutil.MustSubmit(t, db, "vet-42", "2025-Q2", "v1", `{"dog_caseload":{"count":7}}`, nil)

	emails := &gatedEmails{uid: "vet-42", entered: make(chan struct{}), released: make(chan struct{})}
	svc := export.NewService(export.Config{
		Password:    "zip-pass",
		Salt:        "test-salt",
		RawFolderID: "raw",
		ZipFolderID: "zip",
	}, db, export.WithRemote(folder), export.WithEmails(emails))

	first := make(chan error, 1)
	go func() {
		_, err := svc.Rebuild(ctx, "2025-Q2", export.Options{Upload: true})
		first <- err
	}()
	<-emails.entered

	type applied struct {
		ran bool
		err error
	}
	second := make(chan applied, 1)
	go func() {
		ran, err := NewWrites(db, svc, nil).Apply(ctx, models.Submission{
			RespondentID:    "vet-99",
			PeriodID:        "2025-Q2",
			Status:          models.StatusSubmitted,
			TemplateVersion: "v1",
			Answers:         []byte(`{"dog_caseload":{"count":3}}`),
		})
		second <- applied{ran, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := db.GetSubmission(ctx, "vet-99", "2025-Q2"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("write was never stored")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(emails.released)

	if err := <-first; err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	got := <-second
	if got.err != nil || !got.ran {
		t.Fatalf("Apply: ran=%v err=%v", got.ran, got.err)
	}

	key, err := os.ReadFile(filepath.Join(root, "raw", "CASI_2025-Q2_key.csv"))
	if err != nil {
		t.Fatal(err)
	}
	for _, uid := range []string{"vet-42", "vet-99"} {
		if !strings.Contains(string(key), ","+uid+",") {
			t.Errorf("published key file lacks %s:\n%s", uid, key)
		}
	}
	rec, err := db.GetExport(ctx, "2025-Q2")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Rows != 2 {
		t.Errorf("manifest rows = %d, want 2", rec.Rows)
	}
	sub, err := db.GetSubmission(ctx, "vet-99", "2025-Q2")
	if err != nil {
		t.Fatal(err)
	}
	if sub.ExportedAt == nil {
		t.Error("vet-99 not marked exported")
	}
}
