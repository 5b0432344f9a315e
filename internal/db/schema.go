package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
    id         INTEGER PRIMARY KEY,
    nome       TEXT NOT NULL,
    codigo     TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS students (
    id         INTEGER PRIMARY KEY,
    nome       TEXT NOT NULL,
    matricula  TEXT NOT NULL UNIQUE,
    course_id  INTEGER NOT NULL REFERENCES courses(id),
    email      TEXT,
    telefone   TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_students_email
    ON students(email) WHERE email IS NOT NULL;

CREATE TABLE IF NOT EXISTS lockers (
    id         INTEGER PRIMARY KEY,
    numero     TEXT NOT NULL,
    building   TEXT NOT NULL CHECK (building IN ('A', 'B', 'C', 'D', 'E')),
    course_id  INTEGER NOT NULL REFERENCES courses(id),
    status     TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'occupied', 'overdue')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lockers_numero_active
    ON lockers(numero) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS rentals (
    id          INTEGER PRIMARY KEY,
    locker_id   INTEGER NOT NULL REFERENCES lockers(id),
    student_id  INTEGER NOT NULL REFERENCES students(id),
    started_at  DATETIME NOT NULL,
    expected_at DATETIME NOT NULL,
    returned_at DATETIME,
    is_active   INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0, 1)),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((is_active = 1) = (returned_at IS NULL)),
    CHECK (expected_at > started_at)
);

-- At most one active rental per locker and per student.
CREATE UNIQUE INDEX IF NOT EXISTS idx_rentals_active_locker
    ON rentals(locker_id) WHERE is_active = 1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_rentals_active_student
    ON rentals(student_id) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_rentals_locker ON rentals(locker_id);
CREATE INDEX IF NOT EXISTS idx_rentals_student ON rentals(student_id);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
