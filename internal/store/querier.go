package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/erazemk/armarios/internal/overdue"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so read functions can run
// either standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

var (
	// ErrRentalClosed is returned when closing a rental that is already closed.
	ErrRentalClosed = errors.New("rental already closed")
	// ErrLockerRented is returned when deleting a locker with an active rental.
	ErrLockerRented = errors.New("locker has an active rental")
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// looseDate converts a scanned date column. Missing or malformed values become
// the zero time, which is never overdue.
func looseDate(ns sql.NullString) time.Time {
	t, _ := overdue.ParseDate(ns.String)
	return t
}
