package migration

import (
	"context"
	"io/fs"
	"time"
)

// Migration represents a schema migration with its metadata and SQL content.
type Migration struct {
	Version     string // e.g. "001"
	Description string
	SQL         string
	FilePath    string // path inside the source filesystem
	Checksum    string // sha256 of SQL
}

// AppliedMigration represents a migration recorded in schema_migrations.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarizes the schema state of a database.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Scanner loads migrations from a filesystem, usually an embed.FS.
type Scanner interface {
	ScanMigrations(source fs.FS, dir string) ([]Migration, error)
	ValidateFileName(filename string) error
}

// Executor applies migrations and tracks them in the version table.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	ExecuteMigration(ctx context.Context, migration Migration) error
	RecordMigration(ctx context.Context, migration Migration, executionTime time.Duration) error
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
