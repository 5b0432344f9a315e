package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout is how long a connection waits for the write lock when
// no other timeout is given.
const DefaultBusyTimeout = 5 * time.Second

// pragmas are applied to every pooled connection through the DSN, so they
// hold for all transactions and not just the first connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// DSN builds the driver connection string for a database file. Transactions
// start with BEGIN IMMEDIATE so that writers serialize on the write lock
// before they read anything. Times are written in SQLite's own layout.
//
// busyTimeout bounds the wait for the write lock. SQLite's busy handler does
// not observe context cancellation, so it must not exceed the transaction
// timeout.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")
	return "file:" + path + "?" + q.Encode()
}

// Open opens a SQLite database connection pool and verifies it.
func Open(path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}
