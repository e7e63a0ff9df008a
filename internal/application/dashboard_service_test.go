package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/testfixtures"
)

type dashboardEnv struct {
	serviceEnv
	tracking      *TimeTrackingService
	chat          *ChatService
	meetings      *MeetingService
	announcements *AnnouncementService
	dashboard     *DashboardService
}

func newDashboardEnv(t *testing.T) dashboardEnv {
	t.Helper()
	env := newServiceEnv(t)
	h := env.harness
	notifications := NewNotificationServiceWithLogger(h.Notifications, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
	d := dashboardEnv{
		serviceEnv:    env,
		tracking:      newTimeTrackingForTest(env),
		chat:          NewChatServiceWithLogger(h.Chat, h.Users, h.Uploads, notifications, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger()),
		meetings:      newMeetingServiceForTest(env, notifications),
		announcements: NewAnnouncementServiceWithLogger(h.Announcements, h.Users, nil, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger()),
	}
	d.dashboard = NewDashboardServiceWithLogger(DashboardSources{
		Tracking:      d.tracking,
		Leaves:        newLeaveServiceForTest(env, nil, 10),
		Notifications: notifications,
		Chat:          d.chat,
		Meetings:      d.meetings,
		Announcements: d.announcements,
		Users:         h.Users,
		Entries:       h.TimeEntries,
		LeaveRecords:  h.Leaves,
		Forms:         h.Forms,
	}, testLocation, env.clock.NowFunc(), discardLogger())
	return d
}

func TestDashboardService_Employee(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	bob := env.harness.SeedUser(t)
	ctx := context.Background()

	friday := time.Date(2025, time.January, 3, 9, 0, 0, 0, testLocation)
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(alice.ID, friday, 8*time.Hour, EntryStatusCompleted))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(alice.ID, friday.AddDate(0, 0, -1), 6*time.Hour, EntryStatusEarlyOut))

	_, err := env.tracking.ClockIn(ctx, principalOf(alice), ClockInput{})
	require.NoError(t, err)
	env.clock.Advance(2 * time.Hour)

	_, err = env.chat.Send(ctx, principalOf(bob), SendMessageInput{RecipientID: alice.ID, Body: "hi"})
	require.NoError(t, err)

	start := env.clock.Now().Add(24 * time.Hour)
	_, err = env.meetings.Create(ctx, principalOf(alice), MeetingInput{Title: "Plan", StartTime: start, EndTime: start.Add(time.Hour)})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err = env.announcements.Create(ctx, principalOf(admin), AnnouncementInput{Title: fmt.Sprintf("Note %d", i), Content: "body"})
		require.NoError(t, err)
	}

	_, err = env.dashboard.Employee(ctx, Principal{})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	got, err := env.dashboard.Employee(ctx, principalOf(alice))
	require.NoError(t, err)
	assert.Equal(t, TrackingActive, got.Status.State)
	assert.Equal(t, 2.0, got.TodayHours)
	assert.Equal(t, 7.0, got.AverageHours)
	assert.Len(t, got.DailyHours, dashboardAverageDays)
	assert.Equal(t, 10, got.LeaveBalance.Allowance)
	assert.Equal(t, 1, got.UnreadNotifications)
	assert.Equal(t, 1, got.UnreadMessages)
	require.Len(t, got.UpcomingMeetings, 1)
	assert.Equal(t, "Plan", got.UpcomingMeetings[0].Title)
	assert.Len(t, got.Announcements, dashboardAnnouncementCap)
}

func TestDashboardService_Admin(t *testing.T) {
	t.Parallel()

	env := newDashboardEnv(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	alice := env.harness.SeedUser(t)
	bob := env.harness.SeedUser(t)
	env.harness.SeedUser(t, testfixtures.Inactive())
	ctx := context.Background()

	_, err := env.tracking.ClockIn(ctx, principalOf(alice), ClockInput{})
	require.NoError(t, err)
	yesterday := env.clock.Now().AddDate(0, 0, -1)
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(bob.ID, yesterday, 8*time.Hour, EntryStatusCompleted))

	require.NoError(t, env.harness.Leaves.CreateLeave(ctx, testfixtures.NewLeaveFixture(bob.ID, "2025-01-20", "2025-01-21", 2)))
	forms := NewFormServiceWithLogger(env.harness.Forms, nil, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
	_, err = forms.Submit(ctx, principalOf(bob), FormInput{FormType: "equipment", Title: "Monitor"})
	require.NoError(t, err)

	_, err = env.dashboard.Admin(ctx, principalOf(alice))
	assert.Equal(t, KindForbidden, KindOf(err))

	got, err := env.dashboard.Admin(ctx, principalOf(admin))
	require.NoError(t, err)
	assert.Equal(t, AdminDashboard{Headcount: 3, ClockedIn: 1, PendingLeaves: 1, PendingForms: 1, PresentToday: 1}, got)
}

func TestMeanWorkedHours(t *testing.T) {
	t.Parallel()

	assert.Zero(t, meanWorkedHours(nil))
	assert.Equal(t, 7.5, meanWorkedHours([]DailyHours{{Hours: 8, Entries: 1}, {}, {Hours: 7, Entries: 2}}))
}
