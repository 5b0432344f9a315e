package db

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func code(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// IsBusy reports whether err means the database was locked by another writer
// for longer than the busy timeout.
func IsBusy(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	primary := c & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	return c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	c, ok := code(err)
	return ok && c == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// IsConstraintViolation reports whether err is any constraint failure.
func IsConstraintViolation(err error) bool {
	c, ok := code(err)
	return ok && c&0xff == sqlite3.SQLITE_CONSTRAINT
}
