package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/hrms/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the connection pool with every repository built on it.
type Storage struct {
	pool *ConnectionPool

	Users         *UserRepository
	Sessions      *SessionRepository
	TimeEntries   *TimeEntryRepository
	Leaves        *LeaveRepository
	Forms         *FormRepository
	Chat          *ChatRepository
	Projects      *ProjectRepository
	Notifications *NotificationRepository
	Announcements *AnnouncementRepository
	Payroll       *PayrollRepository
	Meetings      *MeetingRepository
	Calendar      *CalendarRepository
	Uploads       *UploadRepository
}

// Open connects to the database described by config. The caller owns the returned
// Storage and must Close it.
func Open(ctx context.Context, config Config) (*Storage, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewStorage(pool), nil
}

// NewStorage builds repositories on an existing pool.
func NewStorage(pool *ConnectionPool) *Storage {
	return &Storage{
		pool:          pool,
		Users:         NewUserRepository(pool),
		Sessions:      NewSessionRepository(pool),
		TimeEntries:   NewTimeEntryRepository(pool),
		Leaves:        NewLeaveRepository(pool),
		Forms:         NewFormRepository(pool),
		Chat:          NewChatRepository(pool),
		Projects:      NewProjectRepository(pool),
		Notifications: NewNotificationRepository(pool),
		Announcements: NewAnnouncementRepository(pool),
		Payroll:       NewPayrollRepository(pool),
		Meetings:      NewMeetingRepository(pool),
		Calendar:      NewCalendarRepository(pool),
		Uploads:       NewUploadRepository(pool),
	}
}

// Pool exposes the underlying connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Migrate applies the embedded schema migrations and returns how many were applied.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	applied, err := s.migrationManager(logger).RunMigrations(ctx)
	if err != nil {
		return applied, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return applied, nil
}

// MigrationStatus reports applied and pending embedded migrations.
func (s *Storage) MigrationStatus(ctx context.Context, logger *slog.Logger) (migration.Status, error) {
	return s.migrationManager(logger).Status(ctx)
}

func (s *Storage) migrationManager(logger *slog.Logger) *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		"migrations",
		logger,
	)
}
