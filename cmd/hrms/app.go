package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/hrms/internal/application"
	"github.com/example/hrms/internal/config"
	httptransport "github.com/example/hrms/internal/http"
	"github.com/example/hrms/internal/persistence/sqlite"
)

func openStorage(ctx context.Context, cfg config.Config) (*sqlite.Storage, error) {
	dbConfig := sqlite.DefaultConfig(cfg.SQLitePath)
	dbConfig.BusyTimeout = cfg.BusyTimeout
	storage, err := sqlite.Open(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return storage, nil
}

func newEmployeeService(storage *sqlite.Storage, logger *slog.Logger) *application.EmployeeService {
	return application.NewEmployeeServiceWithLogger(storage.Users, storage.Sessions, storage.Payroll, uuid.NewString, time.Now, logger)
}

func newServices(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger) (httptransport.Services, error) {
	ids := uuid.NewString
	now := time.Now
	loc := cfg.Location

	tokens, err := application.NewTokenIssuer(cfg.SessionSecret, now)
	if err != nil {
		return httptransport.Services{}, fmt.Errorf("token issuer: %w", err)
	}

	notifications := application.NewNotificationServiceWithLogger(storage.Notifications, ids, now, logger)
	tracking := application.NewTimeTrackingServiceWithLogger(storage.TimeEntries, storage.Users, loc, ids, now, logger)
	leaves := application.NewLeaveServiceWithLogger(storage.Leaves, notifications, loc, cfg.AnnualLeaveDays, ids, now, logger)
	chat := application.NewChatServiceWithLogger(storage.Chat, storage.Users, storage.Uploads, notifications, ids, now, logger)
	meetings := application.NewMeetingServiceWithLogger(storage.Meetings, storage.Users, notifications, loc, ids, now, logger)
	announcements := application.NewAnnouncementServiceWithLogger(storage.Announcements, storage.Users, notifications, ids, now, logger)

	s := httptransport.Services{
		Auth:          application.NewAuthServiceWithLogger(storage.Users, storage.Sessions, tokens, ids, now, cfg.SessionTTL, logger),
		TimeTracking:  tracking,
		Leaves:        leaves,
		Forms:         application.NewFormServiceWithLogger(storage.Forms, notifications, ids, now, logger),
		Chat:          chat,
		Projects:      application.NewProjectServiceWithLogger(storage.Projects, storage.Users, notifications, ids, now, logger),
		Notifications: notifications,
		Announcements: announcements,
		Employees:     newEmployeeService(storage, logger),
		Payroll: application.NewPayrollServiceWithLogger(storage.Payroll, application.PayrollSources{
			Users:   storage.Users,
			Entries: storage.TimeEntries,
			Leaves:  storage.Leaves,
		}, notifications, loc, ids, now, logger),
		Meetings: meetings,
		Calendar: application.NewCalendarServiceWithLogger(storage.Calendar, storage.Meetings, storage.Leaves, loc, ids, now, logger),
		Uploads:  application.NewUploadServiceWithLogger(storage.Uploads, storage.Chat, cfg.UploadDir, cfg.MaxUploadBytes, ids, now, logger),
	}
	s.Dashboard = application.NewDashboardServiceWithLogger(application.DashboardSources{
		Tracking:      tracking,
		Leaves:        leaves,
		Notifications: notifications,
		Chat:          chat,
		Meetings:      meetings,
		Announcements: announcements,
		Users:         storage.Users,
		Entries:       storage.TimeEntries,
		LeaveRecords:  storage.Leaves,
		Forms:         storage.Forms,
	}, loc, now, logger)
	return s, nil
}
