package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
)

func TestFindActiveRentals(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()

	r := rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-12-31"))
	if !r.IsActive || r.Dates.Returned != nil {
		t.Fatalf("expected new rental to be active without return date, got %+v", r)
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer tx.Rollback()

	byLocker, err := FindActiveRentalByLocker(ctx, tx, f.lockers[0].ID)
	if err != nil || byLocker == nil || byLocker.ID != r.ID {
		t.Errorf("FindActiveRentalByLocker = %+v, %v", byLocker, err)
	}
	byStudent, err := FindActiveRentalByStudent(ctx, tx, f.students[0].ID)
	if err != nil || byStudent == nil || byStudent.ID != r.ID {
		t.Errorf("FindActiveRentalByStudent = %+v, %v", byStudent, err)
	}

	none, err := FindActiveRentalByLocker(ctx, tx, f.lockers[1].ID)
	if err != nil || none != nil {
		t.Errorf("expected no active rental for free locker, got %+v, %v", none, err)
	}

	if !r.Dates.Start.Equal(day("2024-02-01")) || !r.Dates.Expected.Equal(day("2024-12-31")) {
		t.Errorf("dates did not round-trip: %+v", r.Dates)
	}
}

func TestCloseRental(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()

	r := rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-12-31"))

	tx, _ := database.BeginTx(ctx, nil)
	closed, err := CloseRental(ctx, tx, r.ID, day("2024-06-01"))
	if err != nil {
		t.Fatalf("CloseRental: %v", err)
	}
	if closed.IsActive || closed.Dates.Returned == nil || !closed.Dates.Returned.Equal(day("2024-06-01")) {
		t.Errorf("unexpected closed rental %+v", closed)
	}

	_, err = CloseRental(ctx, tx, r.ID, day("2024-06-02"))
	if !errors.Is(err, ErrRentalClosed) {
		t.Errorf("expected ErrRentalClosed, got %v", err)
	}

	missing, err := CloseRental(ctx, tx, 999, day("2024-06-02"))
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing rental, got %v, %v", missing, err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSecondActiveRentalRejectedByIndex(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()

	rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-12-31"))

	tx, _ := database.BeginTx(ctx, nil)
	defer tx.Rollback()

	_, err := CreateRental(ctx, tx, f.lockers[1].ID, f.students[0].ID, day("2024-02-01"), day("2024-12-31"))
	if !db.IsUniqueViolation(err) {
		t.Errorf("expected unique violation for second active rental of a student, got %v", err)
	}
}

func TestListRentals(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()
	now := day("2024-09-01")

	first := rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-03-01"))
	tx, _ := database.BeginTx(ctx, nil)
	CloseRental(ctx, tx, first.ID, day("2024-03-01"))
	tx.Commit()

	rent(t, database, f.lockers[0].ID, f.students[1].ID, day("2024-04-01"), day("2024-08-31"))

	all, err := ListRentals(ctx, database, RentalFilter{}, now)
	if err != nil {
		t.Fatalf("ListRentals: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rentals, got %d", len(all))
	}
	if all[0].StudentMatricula != "S2" || !all[0].Overdue {
		t.Errorf("expected newest rental first and overdue, got %+v", all[0])
	}
	if all[1].Overdue {
		t.Error("closed rental must not be overdue")
	}

	active := true
	onlyActive, _ := ListRentals(ctx, database, RentalFilter{Active: &active}, now)
	if len(onlyActive) != 1 {
		t.Errorf("expected 1 active rental, got %d", len(onlyActive))
	}

	byStudent, _ := ListRentals(ctx, database, RentalFilter{StudentID: f.students[0].ID}, now)
	if len(byStudent) != 1 || byStudent[0].LockerNumero != "A-01" {
		t.Errorf("unexpected rentals for student: %+v", byStudent)
	}

	view, err := GetRentalView(ctx, database, first.ID, now)
	if err != nil || view == nil || view.IsActive {
		t.Errorf("GetRentalView = %+v, %v", view, err)
	}
}

func TestDashboardStats(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()

	empty, err := GetDashboardStats(ctx, db.NewTestDB(t), day("2024-09-01"))
	if err != nil {
		t.Fatalf("GetDashboardStats on empty db: %v", err)
	}
	if *empty != (model.DashboardStats{}) {
		t.Errorf("expected zero stats, got %+v", empty)
	}

	rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-08-31"))
	rent(t, database, f.lockers[1].ID, f.students[1].ID, day("2024-02-01"), day("2024-12-31"))

	stats, err := GetDashboardStats(ctx, database, day("2024-09-01"))
	if err != nil {
		t.Fatalf("GetDashboardStats: %v", err)
	}
	if stats.Total != 3 || stats.Available != 1 || stats.Occupied != 2 || stats.Overdue != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMalformedExpectedDateIsNotOverdue(t *testing.T) {
	database := db.NewTestDB(t)
	f := seed(t, database)
	ctx := context.Background()
	now := day("2024-09-01")

	r := rent(t, database, f.lockers[0].ID, f.students[0].ID, day("2024-02-01"), day("2024-08-31"))
	if _, err := database.ExecContext(ctx,
		`UPDATE rentals SET expected_at = 'not-a-date' WHERE id = ?`, r.ID,
	); err != nil {
		t.Fatalf("corrupting expected_at: %v", err)
	}

	lockers, err := ListLockers(ctx, database, LockerFilter{}, now)
	if err != nil {
		t.Fatalf("ListLockers: %v", err)
	}
	if len(lockers) != 3 {
		t.Fatalf("expected 3 lockers, got %d", len(lockers))
	}
	if got := lockers[0]; got.Status != model.LockerStatusOccupied || got.ActiveRental == nil || got.ActiveRental.Overdue {
		t.Errorf("expected occupied, not overdue, got %+v", got)
	}

	stats, err := GetDashboardStats(ctx, database, now)
	if err != nil {
		t.Fatalf("GetDashboardStats: %v", err)
	}
	if stats.Occupied != 1 || stats.Overdue != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	rentals, err := ListRentals(ctx, database, RentalFilter{}, now)
	if err != nil {
		t.Fatalf("ListRentals: %v", err)
	}
	if len(rentals) != 1 || rentals[0].Overdue || !rentals[0].Dates.Expected.IsZero() {
		t.Errorf("expected one rental with no expected date, got %+v", rentals)
	}

	got, err := GetRental(ctx, database, r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRental: %v, %v", got, err)
	}
}
