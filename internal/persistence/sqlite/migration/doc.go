// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql (e.g. "001_users_sessions.sql") and are
// read from an fs.FS, normally an embed.FS compiled into the binary. Applied versions are
// tracked in the schema_migrations table together with the file checksum, and each file
// runs inside its own transaction.
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), files, "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
