package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/overdue"
)

const lockerColumns = `id, numero, building, course_id, status, created_at, updated_at, deleted_at`

func scanLocker(s scanner) (*model.Locker, error) {
	l := &model.Locker{}
	err := s.Scan(&l.ID, &l.Numero, &l.Building, &l.CourseID, &l.Status, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CreateLocker creates an available locker.
func CreateLocker(ctx context.Context, q Querier, numero, building string, courseID int64) (*model.Locker, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO lockers (numero, building, course_id) VALUES (?, ?, ?)`,
		strings.TrimSpace(numero), strings.ToUpper(strings.TrimSpace(building)), courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating locker: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting locker id: %w", err)
	}

	return GetLocker(ctx, q, id)
}

// GetLocker returns a locker by ID, including soft-deleted ones, or nil if it
// does not exist.
func GetLocker(ctx context.Context, q Querier, id int64) (*model.Locker, error) {
	l, err := scanLocker(q.QueryRowContext(ctx,
		`SELECT `+lockerColumns+` FROM lockers WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting locker: %w", err)
	}
	return l, nil
}

// UpdateLocker changes a locker's number, building and course. The status is
// owned by the rental engine and cannot be changed here.
func UpdateLocker(ctx context.Context, q Querier, id int64, numero, building string, courseID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE lockers SET numero = ?, building = ?, course_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		strings.TrimSpace(numero), strings.ToUpper(strings.TrimSpace(building)), courseID, id,
	)
	if err != nil {
		return fmt.Errorf("updating locker: %w", err)
	}
	return nil
}

// SetLockerStatus sets a locker's stored status inside the caller's transaction.
func SetLockerStatus(ctx context.Context, tx *sql.Tx, id int64, status string) (*model.Locker, error) {
	if !model.ValidLockerStatus(status) {
		return nil, fmt.Errorf("invalid locker status %q", status)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE lockers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("setting locker status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("setting locker status: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("setting locker status: locker %d not found", id)
	}

	return GetLocker(ctx, tx, id)
}

// DeleteLocker soft-deletes a locker. Fails with ErrLockerRented while an
// active rental references it. Returns false if the locker does not exist.
func DeleteLocker(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	l, err := GetLocker(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if l == nil || l.DeletedAt != nil {
		return false, nil
	}

	active, err := FindActiveRentalByLocker(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if active != nil || model.IsHeld(l.Status) {
		return false, ErrLockerRented
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE lockers SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return false, fmt.Errorf("deleting locker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing locker deletion: %w", err)
	}
	return true, nil
}

// LockerFilter narrows ListLockers. Zero values match everything. Status is
// compared against the derived status, so "overdue" finds lockers whose
// active rental is past due.
type LockerFilter struct {
	Status   string
	Building string
	CourseID int64
	Numero   string
}

const lockerViewQuery = `
SELECT l.id, l.numero, l.building, l.status, l.created_at, l.updated_at,
       c.id, c.nome, c.codigo,
       r.id, r.started_at, r.expected_at,
       s.id, s.nome, s.matricula
FROM lockers l
JOIN courses c ON c.id = l.course_id
LEFT JOIN rentals r ON r.locker_id = l.id AND r.is_active = 1
LEFT JOIN students s ON s.id = r.student_id
WHERE l.deleted_at IS NULL`

func scanLockerView(s scanner, now time.Time) (*model.LockerView, error) {
	v := &model.LockerView{}
	var (
		rentalID, studentID    sql.NullInt64
		startedAt              sql.NullTime
		expectedAt             sql.NullString
		studentNome, matricula sql.NullString
	)
	err := s.Scan(&v.ID, &v.Numero, &v.Building, &v.StoredStatus, &v.CreatedAt, &v.UpdatedAt,
		&v.Course.ID, &v.Course.Nome, &v.Course.Codigo,
		&rentalID, &startedAt, &expectedAt,
		&studentID, &studentNome, &matricula)
	if err != nil {
		return nil, err
	}

	if rentalID.Valid {
		summary := &model.RentalSummary{
			ID: rentalID.Int64,
			Dates: model.RentalDates{
				Start:    startedAt.Time,
				Expected: looseDate(expectedAt),
			},
			Student: model.StudentSummary{
				ID:        studentID.Int64,
				Nome:      studentNome.String,
				Matricula: matricula.String,
			},
		}
		summary.Overdue = overdue.IsOverdueSummary(*summary, now)
		v.ActiveRental = summary
	}
	v.Status = overdue.DisplayStatus(v.StoredStatus, v.ActiveRental, now)
	return v, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListLockers returns non-deleted lockers with their course and active rental,
// ordered by number. Numero matches case-insensitively anywhere in the number.
func ListLockers(ctx context.Context, q Querier, f LockerFilter, now time.Time) ([]model.LockerView, error) {
	query := lockerViewQuery
	var args []any

	if f.Building != "" {
		query += ` AND l.building = ?`
		args = append(args, strings.ToUpper(f.Building))
	}
	if f.CourseID > 0 {
		query += ` AND l.course_id = ?`
		args = append(args, f.CourseID)
	}
	if f.Numero != "" {
		query += ` AND l.numero LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Numero)+"%")
	}
	query += ` ORDER BY l.numero`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing lockers: %w", err)
	}
	defer rows.Close()

	var lockers []model.LockerView
	for rows.Next() {
		v, err := scanLockerView(rows, now)
		if err != nil {
			return nil, fmt.Errorf("scanning locker: %w", err)
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		lockers = append(lockers, *v)
	}
	return lockers, rows.Err()
}

// GetLockerView returns a non-deleted locker with its course and active
// rental, or nil if it does not exist.
func GetLockerView(ctx context.Context, q Querier, id int64, now time.Time) (*model.LockerView, error) {
	v, err := scanLockerView(q.QueryRowContext(ctx, lockerViewQuery+` AND l.id = ?`, id), now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting locker: %w", err)
	}
	return v, nil
}
