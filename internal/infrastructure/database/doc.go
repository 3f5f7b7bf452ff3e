// Package database provides the SQLite connection behind the change
// journal.
//
// It opens the database with WAL mode and a busy timeout, restricts the
// file to its owner, and applies schema migrations from any fs.FS (the
// binary embeds them from the migrations package).
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and
// each .up.sql file should have a .down.sql counterpart.
package database
