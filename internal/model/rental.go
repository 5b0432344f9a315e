package model

import "time"

// RentalDates holds the dates of a rental.
type RentalDates struct {
	Start    time.Time  `json:"inicio"`
	Expected time.Time  `json:"prevista"`
	Returned *time.Time `json:"real,omitempty"`
}

// Rental assigns one locker to one student for a bounded period.
// Rentals are append-only: they are closed on return and never deleted.
type Rental struct {
	ID        int64       `json:"id"`
	LockerID  int64       `json:"lockerId"`
	StudentID int64       `json:"studentId"`
	Dates     RentalDates `json:"datas"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// RentalSummary is the active rental embedded in a locker view.
type RentalSummary struct {
	ID      int64          `json:"id"`
	Dates   RentalDates    `json:"datas"`
	Overdue bool           `json:"overdue"`
	Student StudentSummary `json:"student"`
}

// RentalView is a rental joined with its locker and student.
type RentalView struct {
	Rental
	LockerNumero     string `json:"lockerNumero"`
	StudentNome      string `json:"studentNome"`
	StudentMatricula string `json:"studentMatricula"`
	Overdue          bool   `json:"overdue"`
}
