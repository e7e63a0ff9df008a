package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/hrms/internal/persistence"
)

const (
	dashboardAverageDays     = 7
	dashboardUpcomingLimit   = 5
	dashboardAnnouncementCap = 5
)

// EmployeeDashboard is the landing summary for the caller.
type EmployeeDashboard struct {
	Status              TrackingStatus `json:"status"`
	TodayHours          float64        `json:"todayHours"`
	AverageHours        float64        `json:"averageHours"`
	DailyHours          []DailyHours   `json:"dailyHours"`
	LeaveBalance        LeaveBalance   `json:"leaveBalance"`
	UnreadNotifications int            `json:"unreadNotifications"`
	UnreadMessages      int            `json:"unreadMessages"`
	UpcomingMeetings    []Meeting      `json:"upcomingMeetings"`
	Announcements       []Announcement `json:"announcements"`
}

// AdminDashboard is the organisation-wide summary shown to administrators.
type AdminDashboard struct {
	Headcount     int `json:"headcount"`
	ClockedIn     int `json:"clockedIn"`
	PendingLeaves int `json:"pendingLeaves"`
	PendingForms  int `json:"pendingForms"`
	PresentToday  int `json:"presentToday"`
}

// DashboardSources bundles the services and repositories the dashboard reads from.
type DashboardSources struct {
	Tracking      *TimeTrackingService
	Leaves        *LeaveService
	Notifications *NotificationService
	Chat          *ChatService
	Meetings      *MeetingService
	Announcements *AnnouncementService

	Users        persistence.UserRepository
	Entries      persistence.TimeEntryRepository
	LeaveRecords persistence.LeaveRepository
	Forms        persistence.FormRepository
}

// DashboardService assembles dashboard summaries by querying every section concurrently.
type DashboardService struct {
	src      DashboardSources
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(src DashboardSources, location *time.Location, now func() time.Time) *DashboardService {
	return NewDashboardServiceWithLogger(src, location, now, nil)
}

// NewDashboardServiceWithLogger constructs a DashboardService with a specified logger.
func NewDashboardServiceWithLogger(src DashboardSources, location *time.Location, now func() time.Time, logger *slog.Logger) *DashboardService {
	if now == nil {
		now = time.Now
	}
	return &DashboardService{
		src:      src,
		location: locationOrDefault(location),
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *DashboardService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DashboardService", operation, attrs...)
}

// Employee gathers the caller's dashboard. A failing section fails the whole summary.
func (s *DashboardService) Employee(ctx context.Context, principal Principal) (result EmployeeDashboard, err error) {
	if s == nil {
		err = fmt.Errorf("DashboardService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Employee", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "employee dashboard built") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, err := s.src.Tracking.statusFor(gctx, principal.UserID)
		if err != nil {
			return fmt.Errorf("clock status: %w", err)
		}
		result.Status = status
		return nil
	})
	g.Go(func() error {
		hours, err := s.src.Tracking.hoursOn(gctx, principal.UserID, s.now())
		if err != nil {
			return fmt.Errorf("today's hours: %w", err)
		}
		result.TodayHours = hours
		return nil
	})
	g.Go(func() error {
		daily, err := s.src.Tracking.averageHours(gctx, principal.UserID, dashboardAverageDays)
		if err != nil {
			return fmt.Errorf("average hours: %w", err)
		}
		result.DailyHours = daily
		result.AverageHours = meanWorkedHours(daily)
		return nil
	})
	g.Go(func() error {
		balance, err := s.src.Leaves.balanceFor(gctx, principal.UserID)
		if err != nil {
			return fmt.Errorf("leave balance: %w", err)
		}
		result.LeaveBalance = balance
		return nil
	})
	g.Go(func() error {
		count, err := s.src.Notifications.UnreadCount(gctx, principal)
		if err != nil {
			return fmt.Errorf("unread notifications: %w", err)
		}
		result.UnreadNotifications = count
		return nil
	})
	g.Go(func() error {
		count, err := s.src.Chat.UnreadCount(gctx, principal)
		if err != nil {
			return fmt.Errorf("unread messages: %w", err)
		}
		result.UnreadMessages = count
		return nil
	})
	g.Go(func() error {
		meetings, err := s.src.Meetings.upcoming(gctx, principal.UserID, dashboardUpcomingLimit)
		if err != nil {
			return fmt.Errorf("upcoming meetings: %w", err)
		}
		result.UpcomingMeetings = meetings
		return nil
	})
	g.Go(func() error {
		announcements, err := s.src.Announcements.List(gctx, principal)
		if err != nil {
			return fmt.Errorf("announcements: %w", err)
		}
		if len(announcements) > dashboardAnnouncementCap {
			announcements = announcements[:dashboardAnnouncementCap]
		}
		result.Announcements = announcements
		return nil
	})

	if err = g.Wait(); err != nil {
		result = EmployeeDashboard{}
	}
	return
}

// Admin gathers the organisation counters.
func (s *DashboardService) Admin(ctx context.Context, principal Principal) (result AdminDashboard, err error) {
	if s == nil {
		err = fmt.Errorf("DashboardService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Admin", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "admin dashboard built") }()

	if err = requireAdmin(principal); err != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.src.Users.CountUsers(gctx, true)
		result.Headcount = n
		return err
	})
	g.Go(func() error {
		n, err := s.src.Entries.CountActiveEntries(gctx)
		result.ClockedIn = n
		return err
	})
	g.Go(func() error {
		n, err := s.src.LeaveRecords.CountLeaves(gctx, LeaveStatusPending)
		result.PendingLeaves = n
		return err
	})
	g.Go(func() error {
		n, err := s.src.Forms.CountForms(gctx, FormStatusPending)
		result.PendingForms = n
		return err
	})
	g.Go(func() error {
		from := startOfDay(s.now(), s.location)
		to := from.AddDate(0, 0, 1)
		entries, err := s.src.Entries.ListEntries(gctx, persistence.TimeEntryFilter{From: &from, To: &to})
		if err != nil {
			return err
		}
		present := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			present[e.UserID] = struct{}{}
		}
		result.PresentToday = len(present)
		return nil
	})

	if err = g.Wait(); err != nil {
		result = AdminDashboard{}
	}
	return
}

// meanWorkedHours averages the daily figures over the days that have entries.
func meanWorkedHours(daily []DailyHours) float64 {
	var total float64
	var worked int
	for _, d := range daily {
		if d.Entries == 0 {
			continue
		}
		total += d.Hours
		worked++
	}
	if worked == 0 {
		return 0
	}
	return round2(total / float64(worked))
}
