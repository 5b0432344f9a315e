package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/armarios/internal/model"
)

// CreateCourse creates a course. The code is stored upper-cased.
func CreateCourse(ctx context.Context, q Querier, nome, codigo string) (*model.Course, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO courses (nome, codigo) VALUES (?, ?)`,
		strings.TrimSpace(nome), strings.ToUpper(strings.TrimSpace(codigo)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating course: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting course id: %w", err)
	}

	return GetCourse(ctx, q, id)
}

// GetCourse returns a course by ID, or nil if it does not exist.
func GetCourse(ctx context.Context, q Querier, id int64) (*model.Course, error) {
	c := &model.Course{}
	err := q.QueryRowContext(ctx,
		`SELECT id, nome, codigo, created_at FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Nome, &c.Codigo, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting course: %w", err)
	}
	return c, nil
}

// ListCourses returns all courses ordered by name.
func ListCourses(ctx context.Context, q Querier) ([]model.Course, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, nome, codigo, created_at FROM courses ORDER BY nome`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Nome, &c.Codigo, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}
