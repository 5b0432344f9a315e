package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/armarios/internal/model"
)

const studentColumns = `id, nome, matricula, course_id, email, telefone, created_at`

func scanStudent(s scanner) (*model.Student, error) {
	st := &model.Student{}
	var email, telefone sql.NullString
	if err := s.Scan(&st.ID, &st.Nome, &st.Matricula, &st.CourseID, &email, &telefone, &st.CreatedAt); err != nil {
		return nil, err
	}
	st.Email = email.String
	st.Telefone = telefone.String
	return st, nil
}

// nullIfEmpty stores empty optional strings as NULL so partial unique
// indexes ignore them.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateStudent creates a student. The email is stored lower-cased.
func CreateStudent(ctx context.Context, q Querier, s model.Student) (*model.Student, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO students (nome, matricula, course_id, email, telefone) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(s.Nome),
		strings.TrimSpace(s.Matricula),
		s.CourseID,
		nullIfEmpty(strings.ToLower(strings.TrimSpace(s.Email))),
		nullIfEmpty(strings.TrimSpace(s.Telefone)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating student: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting student id: %w", err)
	}

	return GetStudent(ctx, q, id)
}

// GetStudent returns a student by ID, or nil if it does not exist.
func GetStudent(ctx context.Context, q Querier, id int64) (*model.Student, error) {
	st, err := scanStudent(q.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting student: %w", err)
	}
	return st, nil
}

// ListStudents returns students, optionally filtered by course.
func ListStudents(ctx context.Context, q Querier, courseID int64) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var args []any
	if courseID > 0 {
		query += ` WHERE course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY nome`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		students = append(students, *st)
	}
	return students, rows.Err()
}
