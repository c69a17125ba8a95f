// Package database provides SQLite connectivity for PillFleet Core.
//
// This package manages:
//   - The single connection the rest of Core shares (SQLite has one
//     writer; the pool is pinned to one slot)
//   - WAL mode so reads proceed while a write is in flight
//   - Embedded schema migrations with an applied-versions ledger
//   - Health checks and shutdown
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - The database file is chmod 0600 (owner read/write only)
//   - Device keys are stored hashed, never in clear
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns (until v2.0 major release)
//   - Each migration file has both .up.sql and .down.sql
package database
