package trigger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/funmi/casi-export/internal/models"
)

type fakePeriods []models.Period

func (f fakePeriods) RecentPeriods(_ context.Context, limit int) ([]models.Period, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func TestNextRun(t *testing.T) {
	regina, err := time.LoadLocation("America/Regina")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before hour", time.Date(2025, 7, 10, 1, 30, 0, 0, regina), time.Date(2025, 7, 10, 3, 0, 0, 0, regina)},
		{"at hour", time.Date(2025, 7, 10, 3, 0, 0, 0, regina), time.Date(2025, 7, 11, 3, 0, 0, 0, regina)},
		{"after hour", time.Date(2025, 12, 31, 22, 0, 0, 0, regina), time.Date(2026, 1, 1, 3, 0, 0, 0, regina)},
		{"utc input", time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC), time.Date(2025, 7, 11, 3, 0, 0, 0, regina)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, 3, regina); !got.Equal(tt.want) {
				t.Errorf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargets_DistinctRecent(t *testing.T) {
	periods := fakePeriods{{ID: "2025-Q3"}, {ID: "2025-Q3"}, {ID: "2025-Q3"}, {ID: "2025-Q2"}}
	n := NewNightly(&recordingRebuilder{}, periods, 3, time.UTC, 2, slog.Default())
	got, err := n.Targets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2025-Q3"}, got); diff != "" {
		t.Errorf("targets (-want +got):\n%s", diff)
	}

	n = NewNightly(&recordingRebuilder{}, fakePeriods{{ID: "2025-Q3"}, {ID: "2025-Q2"}, {ID: "2025-Q1"}}, 3, time.UTC, 2, slog.Default())
	got, err = n.Targets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2025-Q3", "2025-Q2"}, got); diff != "" {
		t.Errorf("targets (-want +got):\n%s", diff)
	}
}

func TestRunOnce_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("drive quota")
	rb := &recordingRebuilder{fail: map[string]error{"2025-Q3": boom}}
	n := NewNightly(rb, fakePeriods{{ID: "2025-Q3"}, {ID: "2025-Q2"}}, 3, time.UTC, 2, slog.Default())

	err := n.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want drive quota", err)
	}
	if diff := cmp.Diff([]string{"2025-Q3", "2025-Q2"}, rb.calls()); diff != "" {
		t.Errorf("rebuilds (-want +got):\n%s", diff)
	}
}

func TestRun_FiresAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	rb := &recordingRebuilder{done: make(chan string, 4)}
	n := NewNightly(rb, fakePeriods{{ID: "2025-Q2"}}, 3, time.UTC, 2, slog.Default())

	past := time.Date(2020, 1, 1, 2, 59, 0, 0, time.UTC)
	first := true
	n.now = func() time.Time {
		if first {
			first = false
			return past
		}
		return time.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- n.Run(ctx) }()

	select {
	case id := <-rb.done:
		if id != "2025-Q2" {
			t.Errorf("rebuilt %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nightly job did not fire")
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
