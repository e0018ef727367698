package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// DayLockRepository serialises writers across processes with transaction-scoped
// advisory locks, one per calendar day.
type DayLockRepository struct{}

// NewDayLockRepository constructs the repository.
func NewDayLockRepository() *DayLockRepository {
	return &DayLockRepository{}
}

// LockDays takes pg_advisory_xact_lock for each day in sorted order. Locks are
// released when the transaction ends.
func (r *DayLockRepository) LockDays(ctx context.Context, tx sqlx.ExtContext, days []string) error {
	sorted := append([]string(nil), days...)
	sort.Strings(sorted)
	for i, day := range sorted {
		if i > 0 && sorted[i-1] == day {
			continue
		}
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "rink-day:"+day); err != nil {
			return fmt.Errorf("lock rink day %s: %w", day, err)
		}
	}
	return nil
}
