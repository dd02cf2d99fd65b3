package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
)

// PeriodStore lists period records.
type PeriodStore interface {
	RecentPeriods(ctx context.Context, limit int) ([]models.Period, error)
}

// Nightly rebuilds the most recently opened periods once a day.
type Nightly struct {
	rebuilder Rebuilder
	periods   PeriodStore
	hour      int
	loc       *time.Location
	recent    int
	logger    *slog.Logger
	now       func() time.Time
}

// NewNightly creates a job firing daily at hour in loc and rebuilding the
// recent most recently opened periods.
func NewNightly(rebuilder Rebuilder, periods PeriodStore, hour int, loc *time.Location, recent int, logger *slog.Logger) *Nightly {
	if loc == nil {
		loc = time.UTC
	}
	if recent <= 0 {
		recent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Nightly{
		rebuilder: rebuilder,
		periods:   periods,
		hour:      hour,
		loc:       loc,
		recent:    recent,
		logger:    logger,
		now:       time.Now,
	}
}

// NextRun returns the first instant strictly after now at hour:00 in loc.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	t := now.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// Run fires RunOnce daily until ctx is cancelled.
func (n *Nightly) Run(ctx context.Context) error {
	for {
		next := NextRun(n.now(), n.hour, n.loc)
		n.logger.Info("nightly: scheduled", slog.Time("next_run", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := n.RunOnce(ctx); err != nil {
				n.logger.Error("nightly: run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Targets returns the distinct ids of the most recently opened periods.
func (n *Nightly) Targets(ctx context.Context) ([]string, error) {
	periods, err := n.periods.RecentPeriods(ctx, n.recent+1)
	if err != nil {
		return nil, fmt.Errorf("nightly: list periods: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, p := range periods {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		ids = append(ids, p.ID)
		if len(ids) == n.recent {
			break
		}
	}
	return ids, nil
}

// RunOnce rebuilds and publishes every target period. A failing period does
// not stop the others; all failures are returned together.
func (n *Nightly) RunOnce(ctx context.Context) error {
	ids, err := n.Targets(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		res, err := n.rebuilder.Rebuild(ctx, id, export.Options{Upload: true})
		if err != nil {
			errs = append(errs, fmt.Errorf("period %s: %w", id, err))
			continue
		}
		n.logger.Info("nightly: rebuilt", slog.String("period", id), slog.Int("rows", res.Rows))
	}
	return errors.Join(errs...)
}
