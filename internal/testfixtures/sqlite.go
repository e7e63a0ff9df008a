package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary, fully migrated SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	Users         persistence.UserRepository
	Sessions      persistence.SessionRepository
	TimeEntries   persistence.TimeEntryRepository
	Leaves        persistence.LeaveRepository
	Forms         persistence.FormRepository
	Chat          persistence.ChatRepository
	Projects      persistence.ProjectRepository
	Notifications persistence.NotificationRepository
	Announcements persistence.AnnouncementRepository
	Payroll       persistence.PayrollRepository
	Meetings      persistence.MeetingRepository
	Calendar      persistence.CalendarRepository
	Uploads       persistence.UploadRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness on a temporary file. Callers may invoke
// Close, but the helper also registers a cleanup callback with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "hrms.db")

	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := storage.Migrate(ctx, logger); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:       storage,
		Users:         storage.Users,
		Sessions:      storage.Sessions,
		TimeEntries:   storage.TimeEntries,
		Leaves:        storage.Leaves,
		Forms:         storage.Forms,
		Chat:          storage.Chat,
		Projects:      storage.Projects,
		Notifications: storage.Notifications,
		Announcements: storage.Announcements,
		Payroll:       storage.Payroll,
		Meetings:      storage.Meetings,
		Calendar:      storage.Calendar,
		Uploads:       storage.Uploads,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser inserts a user built from the supplied options and returns it.
func (h *SQLiteHarness) SeedUser(tb testing.TB, opts ...UserOption) persistence.User {
	tb.Helper()
	user := NewUserFixture(opts...).Record()
	if err := h.Users.CreateUser(context.Background(), user); err != nil {
		tb.Fatalf("failed to seed user %s: %v", user.ID, err)
	}
	return user
}
