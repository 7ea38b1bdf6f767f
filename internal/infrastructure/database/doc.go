// Package database provides SQLite connectivity for the telemetry core.
//
// The core keeps little local state: batches a sink could not deliver are
// recorded here as dead letters so operators can inspect or replay them.
//
// The connection runs in WAL mode with a single pooled connection.
// Schema migrations are embedded in the binary (see /migrations) and their
// checksums are recorded, so an edited migration is refused at startup.
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration has an .up.sql file and usually a .down.sql
//   - Filenames follow YYYYMMDD_HHMMSS_description.{up,down}.sql
package database
