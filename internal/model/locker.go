package model

import "time"

// Locker is a physical storage unit assigned to a course.
type Locker struct {
	ID        int64      `json:"id"`
	Numero    string     `json:"numero"`
	Building  string     `json:"building"`
	CourseID  int64      `json:"courseId"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Locker statuses. LockerStatusOverdue is never written by the rental engine;
// it is derived on read from the active rental's expected return date.
const (
	LockerStatusAvailable = "available"
	LockerStatusOccupied  = "occupied"
	LockerStatusOverdue   = "overdue"
)

// Buildings lists the buildings lockers can be placed in.
var Buildings = []string{"A", "B", "C", "D", "E"}

// ValidBuilding reports whether b is one of the known buildings.
func ValidBuilding(b string) bool {
	for _, known := range Buildings {
		if b == known {
			return true
		}
	}
	return false
}

// ValidLockerStatus reports whether s is a locker status.
func ValidLockerStatus(s string) bool {
	switch s {
	case LockerStatusAvailable, LockerStatusOccupied, LockerStatusOverdue:
		return true
	}
	return false
}

// IsHeld reports whether a stored status means the locker is held by a rental.
func IsHeld(status string) bool {
	return status == LockerStatusOccupied || status == LockerStatusOverdue
}

// LockerView is a locker joined with its course and current rental, with the
// status derived at read time.
type LockerView struct {
	ID           int64          `json:"id"`
	Numero       string         `json:"numero"`
	Building     string         `json:"building"`
	Status       string         `json:"status"`
	Course       CourseSummary  `json:"course"`
	ActiveRental *RentalSummary `json:"activeRental,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	// StoredStatus is the persisted status before overdue derivation.
	StoredStatus string `json:"-"`
}
