// Package database provides SQLite persistence for Nodo Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - In-code, additive-only schema migrations
//   - The hub's Store: device identities and the gateway sync cursor
//
// Only the minimum survives a restart. Device identities let the hub
// recognise known devices immediately on boot; the sync cursor keeps
// gateway event IDs monotonic across restarts. Everything else (last
// states, link states, pending commands) is rebuilt from live traffic.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	store := database.NewStore(db)
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Append new entries to the migrations list, never edit shipped ones
package database
