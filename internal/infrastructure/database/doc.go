// Package database provides the SQLite connection used for event history.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - A single-writer connection pool
//   - Schema migrations read from an fs.FS (the binary embeds them)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql, with an
// optional matching .down.sql. They are applied oldest first, each in its
// own transaction, and recorded in schema_migrations.
package database
