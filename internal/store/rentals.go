package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/overdue"
)

const rentalColumns = `id, locker_id, student_id, started_at, expected_at, returned_at, is_active, created_at, updated_at`

func scanRental(s scanner) (*model.Rental, error) {
	r := &model.Rental{}
	var expected sql.NullString
	err := s.Scan(&r.ID, &r.LockerID, &r.StudentID,
		&r.Dates.Start, &expected, &r.Dates.Returned,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Dates.Expected = looseDate(expected)
	return r, nil
}

func findActiveRental(ctx context.Context, tx *sql.Tx, column string, id int64) (*model.Rental, error) {
	r, err := scanRental(tx.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE `+column+` = ? AND is_active = 1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active rental by %s: %w", column, err)
	}
	return r, nil
}

// FindActiveRentalByLocker returns the active rental for a locker, or nil.
func FindActiveRentalByLocker(ctx context.Context, tx *sql.Tx, lockerID int64) (*model.Rental, error) {
	return findActiveRental(ctx, tx, "locker_id", lockerID)
}

// FindActiveRentalByStudent returns the active rental for a student, or nil.
func FindActiveRentalByStudent(ctx context.Context, tx *sql.Tx, studentID int64) (*model.Rental, error) {
	return findActiveRental(ctx, tx, "student_id", studentID)
}

// CreateRental inserts an active rental inside the caller's transaction.
func CreateRental(ctx context.Context, tx *sql.Tx, lockerID, studentID int64, start, expected time.Time) (*model.Rental, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO rentals (locker_id, student_id, started_at, expected_at, is_active)
		 VALUES (?, ?, ?, ?, 1)`,
		lockerID, studentID, start.UTC(), expected.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rental: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting rental id: %w", err)
	}

	return GetRental(ctx, tx, id)
}

// CloseRental marks an active rental as returned inside the caller's
// transaction. Returns ErrRentalClosed if it was already closed, or nil if
// the rental does not exist.
func CloseRental(ctx context.Context, tx *sql.Tx, id int64, returnedAt time.Time) (*model.Rental, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE rentals SET is_active = 0, returned_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = 1`,
		returnedAt.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("closing rental: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("closing rental: %w", err)
	}

	r, err := GetRental(ctx, tx, id)
	if err != nil || r == nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrRentalClosed
	}
	return r, nil
}

// GetRental returns a rental by ID, or nil if it does not exist.
func GetRental(ctx context.Context, q Querier, id int64) (*model.Rental, error) {
	r, err := scanRental(q.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting rental: %w", err)
	}
	return r, nil
}

// RentalFilter narrows ListRentals. Zero values match everything.
type RentalFilter struct {
	LockerID  int64
	StudentID int64
	Active    *bool
}

const rentalViewQuery = `
SELECT r.id, r.locker_id, r.student_id, r.started_at, r.expected_at, r.returned_at,
       r.is_active, r.created_at, r.updated_at,
       l.numero, s.nome, s.matricula
FROM rentals r
JOIN lockers l ON l.id = r.locker_id
JOIN students s ON s.id = r.student_id
WHERE 1=1`

func scanRentalView(s scanner, now time.Time) (*model.RentalView, error) {
	v := &model.RentalView{}
	var expected sql.NullString
	err := s.Scan(&v.ID, &v.LockerID, &v.StudentID,
		&v.Dates.Start, &expected, &v.Dates.Returned,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt,
		&v.LockerNumero, &v.StudentNome, &v.StudentMatricula)
	if err != nil {
		return nil, err
	}
	v.Dates.Expected = looseDate(expected)
	v.Overdue = overdue.IsOverdue(v.Rental, now)
	return v, nil
}

// ListRentals returns the rental history, newest first.
func ListRentals(ctx context.Context, q Querier, f RentalFilter, now time.Time) ([]model.RentalView, error) {
	query := rentalViewQuery
	var args []any

	if f.LockerID > 0 {
		query += ` AND r.locker_id = ?`
		args = append(args, f.LockerID)
	}
	if f.StudentID > 0 {
		query += ` AND r.student_id = ?`
		args = append(args, f.StudentID)
	}
	if f.Active != nil {
		query += ` AND r.is_active = ?`
		args = append(args, *f.Active)
	}
	query += ` ORDER BY r.started_at DESC, r.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rentals: %w", err)
	}
	defer rows.Close()

	var rentals []model.RentalView
	for rows.Next() {
		v, err := scanRentalView(rows, now)
		if err != nil {
			return nil, fmt.Errorf("scanning rental: %w", err)
		}
		rentals = append(rentals, *v)
	}
	return rentals, rows.Err()
}

// GetRentalView returns a rental joined with its locker and student, or nil.
func GetRentalView(ctx context.Context, q Querier, id int64, now time.Time) (*model.RentalView, error) {
	v, err := scanRentalView(q.QueryRowContext(ctx, rentalViewQuery+` AND r.id = ?`, id), now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting rental: %w", err)
	}
	return v, nil
}
