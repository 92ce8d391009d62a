// Package database provides SQLite connectivity for the relay's durable state.
//
// This package manages:
//   - Database connection with synchronous=FULL for power-loss durability
//   - Rollback journal by default, so the file is self-contained at rest
//   - Versioned schema migrations read from an fs.FS
//   - Integrity checking via PRAGMA quick_check
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "/data/queue.dat", BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.IntegrityCheck(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := db.Migrate(ctx, migrations.Source); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Only up migrations are applied by the relay; the down
// files are for rolling back by hand with the sqlite3 shell.
package database
