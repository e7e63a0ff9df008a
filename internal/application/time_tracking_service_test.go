package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/testfixtures"
)

var testLocation = time.FixedZone("JST", 9*60*60)

func newTimeTrackingForTest(env serviceEnv) *TimeTrackingService {
	return NewTimeTrackingServiceWithLogger(env.harness.TimeEntries, env.harness.Users, testLocation, env.ids.NextFunc(), env.clock.NowFunc(), discardLogger())
}

func seedClosedEntry(t *testing.T, repo persistence.TimeEntryRepository, entry persistence.TimeEntry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateActiveEntry(ctx, entry))
	require.NoError(t, repo.CloseEntry(ctx, entry))
}

func TestTimeTrackingService_ClockOutComputesHours(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		shift      time.Duration
		wantHours  float64
		wantStatus string
	}{
		{"full shift completes", 8 * time.Hour, 8, EntryStatusCompleted},
		{"threshold completes", 6*time.Hour + 30*time.Minute, 6.5, EntryStatusCompleted},
		{"short shift is early out", 6*time.Hour + 29*time.Minute + 30*time.Second, 6.49, EntryStatusEarlyOut},
		{"hours round to two decimals", 7*time.Hour + 20*time.Minute, 7.33, EntryStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newServiceEnv(t)
			user := env.harness.SeedUser(t)
			svc := newTimeTrackingForTest(env)
			ctx := context.Background()

			in, err := svc.ClockIn(ctx, principalOf(user), ClockInput{Notes: " remote "})
			require.NoError(t, err)
			assert.Equal(t, EntryStatusActive, in.Status)
			assert.Equal(t, "remote", in.Notes)

			env.clock.Advance(tc.shift)
			out, err := svc.ClockOut(ctx, principalOf(user), ClockInput{})
			require.NoError(t, err)
			require.NotNil(t, out.TotalHours)
			assert.Equal(t, tc.wantHours, *out.TotalHours)
			assert.Equal(t, tc.wantStatus, out.Status)
			assert.Equal(t, "remote", out.Notes)

			stored, err := env.harness.TimeEntries.GetEntry(ctx, in.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.TotalHours)
			assert.Equal(t, tc.wantHours, *stored.TotalHours)
		})
	}
}

func TestTimeTrackingService_StateMachine(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	svc := newTimeTrackingForTest(env)
	ctx := context.Background()
	p := principalOf(user)

	status, err := svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, TrackingIdle, status.State)

	_, err = svc.ClockOut(ctx, p, ClockInput{})
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = svc.StartBreak(ctx, p)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = svc.ClockIn(ctx, p, ClockInput{})
	require.NoError(t, err)
	_, err = svc.ClockIn(ctx, p, ClockInput{})
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.EndBreak(ctx, p)
	assert.Equal(t, KindBadRequest, KindOf(err))

	env.clock.Advance(3 * time.Hour)
	_, err = svc.StartBreak(ctx, p)
	require.NoError(t, err)
	_, err = svc.StartBreak(ctx, p)
	assert.Equal(t, KindBadRequest, KindOf(err))

	env.clock.Advance(45*time.Minute + 20*time.Second)
	status, err = svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, TrackingOnBreak, status.State)
	require.NotNil(t, status.Break)
	assert.Equal(t, 45, status.BreakMinutesToday)
	assert.Equal(t, 3.76, status.ElapsedHours)

	ended, err := svc.EndBreak(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, ended.DurationMinutes)
	assert.Equal(t, 45, *ended.DurationMinutes)

	status, err = svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, TrackingActive, status.State)
	assert.Nil(t, status.Break)

	_, err = svc.StartBreak(ctx, p)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)

	out, err := svc.ClockOut(ctx, p, ClockInput{Notes: "done"})
	require.NoError(t, err)
	require.Len(t, out.Breaks, 2)
	require.NotNil(t, out.Breaks[1].DurationMinutes)
	assert.Equal(t, 10, *out.Breaks[1].DurationMinutes)
	require.NotNil(t, out.Breaks[1].EndTime)
	assert.True(t, out.TimeOut.Equal(*out.Breaks[1].EndTime))
	// Break time is not subtracted from the shift.
	assert.Equal(t, 3.92, *out.TotalHours)
	assert.Equal(t, EntryStatusEarlyOut, out.Status)

	status, err = svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, TrackingIdle, status.State)
	assert.Equal(t, 55, status.BreakMinutesToday)
}

func TestTimeTrackingService_ConcurrentClockInAllowsOneEntry(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	svc := newTimeTrackingForTest(env)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
		other     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ClockIn(context.Background(), principalOf(user), ClockInput{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case KindOf(err) == KindBadRequest:
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, rejected)
}

func TestTimeTrackingService_AverageHoursByDay(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	other := env.harness.SeedUser(t)
	svc := newTimeTrackingForTest(env)
	ctx := context.Background()

	// Clock: Monday 2025-01-06 09:00 JST. Window of 3 days: Jan 4, 5, 6.
	now := env.clock.Now()
	saturday := now.AddDate(0, 0, -2)
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(user.ID, saturday, 8*time.Hour, EntryStatusCompleted))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(user.ID, saturday.Add(9*time.Hour), 6*time.Hour, EntryStatusEarlyOut))
	// Outside the window.
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(user.ID, now.AddDate(0, 0, -3), 9*time.Hour, EntryStatusCompleted))
	// Still open today, excluded from the average.
	require.NoError(t, env.harness.TimeEntries.CreateActiveEntry(ctx, testfixtures.NewActiveEntry(user.ID, now.Add(-time.Hour))))

	result, err := svc.AverageHoursByDay(ctx, principalOf(user), AverageHoursInput{Days: 3})
	require.NoError(t, err)
	assert.Equal(t, []DailyHours{
		{Date: "2025-01-04", Hours: 7, Entries: 2},
		{Date: "2025-01-05", Hours: 0},
		{Date: "2025-01-06", Hours: 0},
	}, result)

	defaultWindow, err := svc.AverageHoursByDay(ctx, principalOf(user), AverageHoursInput{})
	require.NoError(t, err)
	require.Len(t, defaultWindow, 7)
	assert.Equal(t, "2024-12-31", defaultWindow[0].Date)
	assert.Equal(t, 9.0, defaultWindow[3].Hours)

	_, err = svc.AverageHoursByDay(ctx, principalOf(other), AverageHoursInput{UserID: user.ID})
	assert.Equal(t, KindForbidden, KindOf(err))

	forAdmin, err := svc.AverageHoursByDay(ctx, principalOf(admin), AverageHoursInput{UserID: user.ID, Days: 3})
	require.NoError(t, err)
	assert.Equal(t, result, forAdmin)
}

func TestTimeTrackingService_HistoryAndAttendance(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	colleague := env.harness.SeedUser(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	svc := newTimeTrackingForTest(env)
	ctx := context.Background()

	now := env.clock.Now()
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(user.ID, now.AddDate(0, 0, -1), 8*time.Hour, EntryStatusCompleted))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(user.ID, now.AddDate(0, 0, -7), 8*time.Hour, EntryStatusCompleted))
	seedClosedEntry(t, env.harness.TimeEntries, testfixtures.NewClosedEntry(colleague.ID, now.AddDate(0, 0, -1), 7*time.Hour, EntryStatusCompleted))

	history, err := svc.History(ctx, principalOf(user), HistoryInput{From: "2025-01-01", To: "2025-01-05"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, user.ID, history[0].UserID)

	all, err := svc.History(ctx, principalOf(user), HistoryInput{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all[0].TimeIn.After(all[1].TimeIn))

	_, err = svc.History(ctx, principalOf(user), HistoryInput{From: "2025-01-05", To: "2025-01-01"})
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = svc.Attendance(ctx, principalOf(user), AttendanceInput{From: "2025-01-05", To: "2025-01-05"})
	assert.Equal(t, KindForbidden, KindOf(err))

	rows, err := svc.Attendance(ctx, principalOf(admin), AttendanceInput{From: "2025-01-05", To: "2025-01-05"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	names := []string{rows[0].UserName, rows[1].UserName}
	assert.ElementsMatch(t, []string{user.Name, colleague.Name}, names)

	rows, err = svc.Attendance(ctx, principalOf(admin), AttendanceInput{From: "2025-01-05", To: "2025-01-05", UserID: colleague.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestTimeTrackingService_CorrectEntry(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	user := env.harness.SeedUser(t)
	admin := env.harness.SeedUser(t, testfixtures.WithAdminRole())
	svc := newTimeTrackingForTest(env)
	ctx := context.Background()

	entry, err := svc.ClockIn(ctx, principalOf(user), ClockInput{})
	require.NoError(t, err)

	timeIn := entry.TimeIn.Add(-time.Hour)
	timeOut := timeIn.Add(9 * time.Hour)
	notes := "forgot to clock out"

	_, err = svc.CorrectEntry(ctx, principalOf(user), CorrectEntryInput{ID: entry.ID, TimeIn: timeIn, TimeOut: &timeOut})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.CorrectEntry(ctx, principalOf(admin), CorrectEntryInput{ID: entry.ID, TimeIn: timeOut, TimeOut: &timeIn})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "timeOut")

	corrected, err := svc.CorrectEntry(ctx, principalOf(admin), CorrectEntryInput{ID: entry.ID, TimeIn: timeIn, TimeOut: &timeOut, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, corrected.TotalHours)
	assert.Equal(t, 9.0, *corrected.TotalHours)
	assert.Equal(t, EntryStatusCompleted, corrected.Status)
	assert.Equal(t, notes, corrected.Notes)

	status, err := svc.Status(ctx, principalOf(user))
	require.NoError(t, err)
	assert.Equal(t, TrackingIdle, status.State)

	_, err = svc.CorrectEntry(ctx, principalOf(admin), CorrectEntryInput{ID: "missing", TimeIn: timeIn})
	assert.Equal(t, KindNotFound, KindOf(err))

	t.Run("closing an entry closes its open break", func(t *testing.T) {
		other := env.harness.SeedUser(t)
		open, err := svc.ClockIn(ctx, principalOf(other), ClockInput{})
		require.NoError(t, err)
		env.clock.Advance(time.Hour)
		_, err = svc.StartBreak(ctx, principalOf(other))
		require.NoError(t, err)

		closeAt := open.TimeIn.Add(2 * time.Hour)
		corrected, err := svc.CorrectEntry(ctx, principalOf(admin), CorrectEntryInput{ID: open.ID, TimeIn: open.TimeIn, TimeOut: &closeAt})
		require.NoError(t, err)
		require.Len(t, corrected.Breaks, 1)
		require.NotNil(t, corrected.Breaks[0].EndTime)
		assert.True(t, corrected.Breaks[0].EndTime.Equal(closeAt))
		require.NotNil(t, corrected.Breaks[0].DurationMinutes)
		assert.Equal(t, 60, *corrected.Breaks[0].DurationMinutes)

		env.clock.Advance(3 * time.Hour)
		status, err := svc.Status(ctx, principalOf(other))
		require.NoError(t, err)
		assert.Equal(t, TrackingIdle, status.State)
		assert.Equal(t, 60, status.BreakMinutesToday)

		_, err = svc.ClockIn(ctx, principalOf(other), ClockInput{})
		require.NoError(t, err)
	})

	t.Run("breaks after the corrected clock-out are clamped", func(t *testing.T) {
		other := env.harness.SeedUser(t)
		open, err := svc.ClockIn(ctx, principalOf(other), ClockInput{})
		require.NoError(t, err)
		env.clock.Advance(2 * time.Hour)
		_, err = svc.StartBreak(ctx, principalOf(other))
		require.NoError(t, err)

		closeAt := open.TimeIn.Add(time.Hour)
		corrected, err := svc.CorrectEntry(ctx, principalOf(admin), CorrectEntryInput{ID: open.ID, TimeIn: open.TimeIn, TimeOut: &closeAt})
		require.NoError(t, err)
		require.Len(t, corrected.Breaks, 1)
		require.NotNil(t, corrected.Breaks[0].EndTime)
		assert.True(t, corrected.Breaks[0].EndTime.Equal(corrected.Breaks[0].StartTime))
		require.NotNil(t, corrected.Breaks[0].DurationMinutes)
		assert.Equal(t, 0, *corrected.Breaks[0].DurationMinutes)
	})
}
