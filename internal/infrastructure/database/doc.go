// Package database opens the SQLite file behind the local key-value backend
// and applies its schema migrations.
//
// The connection uses WAL mode and a busy timeout so reads can proceed while
// the debounced KV writer flushes. Migrations are read from any fs.FS; the
// binary embeds them through the top-level migrations package:
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
// Migrations are additive: new columns must be nullable or carry a default,
// and each .up.sql has a matching .down.sql.
package database
