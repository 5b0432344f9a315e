package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/overdue"
)

// GetDashboardStats counts lockers by status. The read runs outside any
// transaction and is only a snapshot.
func GetDashboardStats(ctx context.Context, q Querier, now time.Time) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{}
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status <> 'available' THEN 1 ELSE 0 END), 0)
		 FROM lockers WHERE deleted_at IS NULL`,
	).Scan(&stats.Total, &stats.Available, &stats.Occupied)
	if err != nil {
		return nil, fmt.Errorf("counting lockers: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT r.expected_at FROM rentals r
		 JOIN lockers l ON l.id = r.locker_id
		 WHERE r.is_active = 1 AND l.deleted_at IS NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active rentals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expected sql.NullString
		if err := rows.Scan(&expected); err != nil {
			return nil, fmt.Errorf("scanning active rental: %w", err)
		}
		if overdue.IsOverdueRaw(true, expected.String, now) {
			stats.Overdue++
		}
	}
	return stats, rows.Err()
}
