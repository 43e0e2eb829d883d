package database

import "errors"

// Errors returned by the database package.
var (
	// ErrEmptyPath is returned when Open is called without a database path.
	ErrEmptyPath = errors.New("database: path is required")

	// ErrNoUpMigration is returned when a down migration has no matching up file.
	ErrNoUpMigration = errors.New("database: migration has no up file")
)
