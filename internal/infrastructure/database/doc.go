// Package database provides the SQLite connection used for the device
// state history audit trail.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying embedded schema migrations
//   - Health checks and lifecycle management
//
// The registry itself is never loaded from this database; it only receives
// state snapshots written by the history reporter.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
