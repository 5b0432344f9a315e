// Package rental moves lockers between available and occupied. Every
// operation runs in one transaction that either commits all of its effects
// or none of them.
package rental

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/erazemk/armarios/internal/apperr"
	"github.com/erazemk/armarios/internal/db"
	"github.com/erazemk/armarios/internal/model"
	"github.com/erazemk/armarios/internal/store"
)

// Defaults for Manager.
const (
	DefaultTxTimeout = 5 * time.Second
	DefaultTxRetries = 2
)

// Manager runs Rent and Return against the database.
type Manager struct {
	DB *sql.DB
	// Clock is used for return dates and overdue checks. Defaults to time.Now.
	Clock func() time.Time
	// TxTimeout bounds a single transaction attempt.
	TxTimeout time.Duration
	// TxRetries is how many times a transiently failed transaction is retried.
	TxRetries int
}

// NewManager returns a Manager with default timeout and retries.
func NewManager(database *sql.DB) *Manager {
	return &Manager{
		DB:        database,
		Clock:     time.Now,
		TxTimeout: DefaultTxTimeout,
		TxRetries: DefaultTxRetries,
	}
}

// RentParams are the inputs to Rent.
type RentParams struct {
	LockerID  int64
	StudentID int64
	Start     time.Time
	Expected  time.Time
}

// Validate checks the parameters without touching the database.
func (p RentParams) Validate() error {
	fields := map[string]string{}
	if p.LockerID <= 0 {
		fields["lockerId"] = "required"
	}
	if p.StudentID <= 0 {
		fields["studentId"] = "required"
	}
	if p.Start.IsZero() {
		fields["dataInicio"] = "required"
	}
	if p.Expected.IsZero() {
		fields["dataPrevista"] = "required"
	} else if !p.Start.IsZero() && !p.Expected.After(p.Start) {
		fields["dataPrevista"] = "must be after dataInicio"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid rental", fields)
	}
	return nil
}

// Now returns the manager's current time in UTC.
func (m *Manager) Now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock().UTC()
}

// Rent creates an active rental and marks the locker occupied.
func (m *Manager) Rent(ctx context.Context, p RentParams) (*model.Rental, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var rental *model.Rental
	err := m.withTx(ctx, "rent", func(ctx context.Context, tx *sql.Tx) error {
		r, err := rent(ctx, tx, p)
		rental = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return rental, nil
}

func rent(ctx context.Context, tx *sql.Tx, p RentParams) (*model.Rental, error) {
	locker, err := store.GetLocker(ctx, tx, p.LockerID)
	if err != nil {
		return nil, err
	}
	if locker == nil || locker.DeletedAt != nil {
		return nil, apperr.NotFound("locker not found")
	}

	active, err := store.FindActiveRentalByLocker(ctx, tx, locker.ID)
	if err != nil {
		return nil, err
	}
	held := model.IsHeld(locker.Status)
	switch {
	case held && active == nil:
		return nil, apperr.Invariant("locker %d is %s without an active rental", locker.ID, locker.Status)
	case !held && active != nil:
		return nil, apperr.Invariant("locker %d is available but rental %d is active", locker.ID, active.ID)
	case held:
		return nil, apperr.Conflict("this locker is not available")
	}

	student, err := store.GetStudent(ctx, tx, p.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, apperr.NotFound("student not found")
	}

	current, err := store.FindActiveRentalByStudent(ctx, tx, student.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, apperr.Conflict("this student already has an active rental")
	}

	r, err := store.CreateRental(ctx, tx, locker.ID, student.ID, p.Start, p.Expected)
	if err != nil {
		return nil, err
	}
	if _, err := store.SetLockerStatus(ctx, tx, locker.ID, model.LockerStatusOccupied); err != nil {
		return nil, err
	}
	return r, nil
}

// Return closes an active rental and makes its locker available again. A
// zero returnedAt means now.
func (m *Manager) Return(ctx context.Context, rentalID int64, returnedAt time.Time) (*model.Rental, error) {
	if rentalID <= 0 {
		return nil, apperr.Validation("invalid rental id", map[string]string{"id": "must be a positive integer"})
	}
	if returnedAt.IsZero() {
		returnedAt = m.Now()
	}

	var rental *model.Rental
	err := m.withTx(ctx, "return", func(ctx context.Context, tx *sql.Tx) error {
		r, err := giveBack(ctx, tx, rentalID, returnedAt)
		rental = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return rental, nil
}

func giveBack(ctx context.Context, tx *sql.Tx, rentalID int64, returnedAt time.Time) (*model.Rental, error) {
	r, err := store.GetRental(ctx, tx, rentalID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("rental not found")
	}
	if !r.IsActive {
		return nil, apperr.Conflict("this rental has already been returned")
	}
	if returnedAt.Before(r.Dates.Start) {
		return nil, apperr.Validation("invalid return date", map[string]string{"dataDevolucao": "must not be before dataInicio"})
	}

	locker, err := store.GetLocker(ctx, tx, r.LockerID)
	if err != nil {
		return nil, err
	}
	if locker == nil {
		return nil, apperr.Invariant("rental %d references missing locker %d", r.ID, r.LockerID)
	}
	if !model.IsHeld(locker.Status) {
		return nil, apperr.Invariant("rental %d is active but locker %d is %s", r.ID, locker.ID, locker.Status)
	}

	closed, err := store.CloseRental(ctx, tx, r.ID, returnedAt)
	if err != nil {
		return nil, err
	}
	if _, err := store.SetLockerStatus(ctx, tx, locker.ID, model.LockerStatusAvailable); err != nil {
		return nil, err
	}
	return closed, nil
}

// withTx runs fn in a transaction bounded by TxTimeout, retrying transient
// failures with jittered backoff. fn's effects are rolled back on any error.
func (m *Manager) withTx(ctx context.Context, op string, fn func(context.Context, *sql.Tx) error) error {
	timeout := m.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}

	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt*attempt)*20*time.Millisecond + rand.N(50*time.Millisecond)
			slog.Warn("retrying transaction", "op", op, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return apperr.Transient(ctx.Err())
			case <-time.After(delay):
			}
		}

		err = m.attempt(ctx, timeout, fn)
		if err == nil {
			return nil
		}
		if !apperr.Is(err, apperr.KindTransient) || attempt >= m.TxRetries || ctx.Err() != nil {
			break
		}
	}

	if apperr.Is(err, apperr.KindInvariant) {
		var e *apperr.Error
		errors.As(err, &e)
		slog.Error("invariant violation", "op", op, "error", fmt.Sprintf("%+v", e.Err))
	}
	return err
}

func (m *Manager) attempt(ctx context.Context, timeout time.Duration, fn func(context.Context, *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return classify(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return classify(ctx, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// classify maps store failures onto error kinds. Errors that are already
// classified pass through unchanged.
func classify(ctx context.Context, err error) error {
	var e *apperr.Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, store.ErrRentalClosed):
		return apperr.Conflict("this rental has already been returned")
	case db.IsUniqueViolation(err):
		return apperr.Conflict("the locker or student already has an active rental")
	case db.IsBusy(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrTxDone) && ctx.Err() != nil:
		return apperr.Transient(err)
	default:
		return err
	}
}
