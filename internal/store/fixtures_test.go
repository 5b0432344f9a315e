package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/armarios/internal/model"
)

type fixture struct {
	course   *model.Course
	students []*model.Student
	lockers  []*model.Locker
}

// seed creates a course, two students and lockers A-01, A-02 and B-01.
func seed(t *testing.T, database *sql.DB) fixture {
	t.Helper()
	ctx := context.Background()

	course, err := CreateCourse(ctx, database, "Engenharia", "eng")
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	f := fixture{course: course}
	for _, m := range []string{"S1", "S2"} {
		s, err := CreateStudent(ctx, database, model.Student{Nome: "Aluno " + m, Matricula: m, CourseID: course.ID})
		if err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
		f.students = append(f.students, s)
	}
	for _, l := range []struct{ numero, building string }{{"A-01", "A"}, {"A-02", "A"}, {"B-01", "b"}} {
		locker, err := CreateLocker(ctx, database, l.numero, l.building, course.ID)
		if err != nil {
			t.Fatalf("CreateLocker: %v", err)
		}
		f.lockers = append(f.lockers, locker)
	}
	return f
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// rent opens a rental and marks the locker occupied in one transaction.
func rent(t *testing.T, database *sql.DB, lockerID, studentID int64, start, expected time.Time) *model.Rental {
	t.Helper()
	ctx := context.Background()

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer tx.Rollback()

	r, err := CreateRental(ctx, tx, lockerID, studentID, start, expected)
	if err != nil {
		t.Fatalf("CreateRental: %v", err)
	}
	if _, err := SetLockerStatus(ctx, tx, lockerID, model.LockerStatusOccupied); err != nil {
		t.Fatalf("SetLockerStatus: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return r
}
