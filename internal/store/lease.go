package store

import (
	"context"
	"fmt"
	"time"

	"github.com/funmi/casi-export/internal/apperr"
)

// AcquireLease claims the per-period export lease for holder until now+ttl.
// An unexpired lease owned by a different holder yields apperr.ErrLeaseHeld.
// Re-acquiring by the same holder extends the lease.
func (db *DB) AcquireLease(ctx context.Context, periodID, holder string, now time.Time, ttl time.Duration) error {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO export_leases (period_id, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(period_id) DO UPDATE SET
			holder     = excluded.holder,
			expires_at = excluded.expires_at
		WHERE export_leases.expires_at <= ? OR export_leases.holder = excluded.holder
	`, periodID, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: acquire lease: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: period %s: %w", periodID, apperr.ErrLeaseHeld)
	}
	return nil
}

// ReleaseLease drops the lease if it is still owned by holder.
func (db *DB) ReleaseLease(ctx context.Context, periodID, holder string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM export_leases WHERE period_id = ? AND holder = ?`, periodID, holder)
	if err != nil {
		return fmt.Errorf("store: release lease: %w", err)
	}
	return nil
}
