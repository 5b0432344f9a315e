// Package overdue classifies rentals as overdue at read time. Overdue is never
// stored; every read path derives it here.
package overdue

import (
	"strings"
	"time"

	"github.com/erazemk/armarios/internal/model"
)

// IsOverdue reports whether r is active and now is past its expected return
// date. A rental with no expected date is never overdue.
func IsOverdue(r model.Rental, now time.Time) bool {
	return isOverdue(r.IsActive, r.Dates.Expected, now)
}

// IsOverdueSummary is IsOverdue for the rental embedded in a locker view,
// which is active by construction.
func IsOverdueSummary(r model.RentalSummary, now time.Time) bool {
	return isOverdue(r.Dates.Returned == nil, r.Dates.Expected, now)
}

// IsOverdueRaw classifies a rental whose expected date has not been parsed
// yet. Missing or malformed dates are treated as not overdue.
func IsOverdueRaw(active bool, expected string, now time.Time) bool {
	t, ok := ParseDate(expected)
	if !ok {
		return false
	}
	return isOverdue(active, t, now)
}

func isOverdue(active bool, expected, now time.Time) bool {
	if !active || expected.IsZero() {
		return false
	}
	return now.After(expected)
}

// dateLayouts are the accepted date encodings, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// ParseDate parses a calendar date (YYYY-MM-DD, taken as midnight UTC) or a
// full timestamp. It reports false for empty or unparsable input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// DisplayStatus derives the status shown for a locker from its stored status
// and its active rental, if any.
func DisplayStatus(stored string, active *model.RentalSummary, now time.Time) string {
	if active == nil {
		if model.IsHeld(stored) {
			// Held without a rental is an inconsistency; show what is stored.
			return model.LockerStatusOccupied
		}
		return model.LockerStatusAvailable
	}
	if IsOverdueSummary(*active, now) {
		return model.LockerStatusOverdue
	}
	return model.LockerStatusOccupied
}
