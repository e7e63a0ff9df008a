package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// Time entry states.
const (
	EntryStatusActive    = "active"
	EntryStatusCompleted = "completed"
	EntryStatusEarlyOut  = "early_out"

	TrackingIdle    = "idle"
	TrackingActive  = "active"
	TrackingOnBreak = "on_break"

	// earlyOutThreshold is the minimum shift length in hours for a completed entry.
	earlyOutThreshold = 6.5

	defaultAverageDays = 7
)

// ClockInput carries optional notes for clock-in and clock-out.
type ClockInput struct {
	Notes string `json:"notes" validate:"max=500"`
}

// HistoryInput bounds the caller's entry history by inclusive dates.
type HistoryInput struct {
	From string `json:"from" validate:"omitempty,date"`
	To   string `json:"to" validate:"omitempty,date"`
}

// AverageHoursInput selects the trailing window for the daily average.
type AverageHoursInput struct {
	Days   int    `json:"days" validate:"omitempty,min=1,max=90"`
	UserID string `json:"userId"`
}

// AttendanceInput bounds an administrator's attendance report by inclusive dates.
type AttendanceInput struct {
	From   string `json:"from" validate:"required,date"`
	To     string `json:"to" validate:"required,date"`
	UserID string `json:"userId"`
}

// CorrectEntryInput rewrites an entry's timestamps.
type CorrectEntryInput struct {
	ID      string     `json:"id" validate:"required"`
	TimeIn  time.Time  `json:"timeIn" validate:"required"`
	TimeOut *time.Time `json:"timeOut"`
	Notes   *string    `json:"notes" validate:"omitempty,max=500"`
}

// TrackingStatus is the caller's current clock state.
type TrackingStatus struct {
	State             string     `json:"state"`
	Entry             *TimeEntry `json:"entry,omitempty"`
	Break             *BreakLog  `json:"break,omitempty"`
	ElapsedHours      float64    `json:"elapsedHours"`
	BreakMinutesToday int        `json:"breakMinutesToday"`
}

// DailyHours is one bucket of the trailing average.
type DailyHours struct {
	Date    string  `json:"date"`
	Hours   float64 `json:"hours"`
	Entries int     `json:"entries"`
}

// AttendanceRow is an entry annotated with its owner's name.
type AttendanceRow struct {
	TimeEntry
	UserName string `json:"userName"`
}

// TimeTrackingService drives the clock-in, break and clock-out state machine.
type TimeTrackingService struct {
	entries     persistence.TimeEntryRepository
	users       persistence.UserRepository
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTimeTrackingService constructs a TimeTrackingService.
func NewTimeTrackingService(entries persistence.TimeEntryRepository, users persistence.UserRepository, location *time.Location, idGenerator func() string, now func() time.Time) *TimeTrackingService {
	return NewTimeTrackingServiceWithLogger(entries, users, location, idGenerator, now, nil)
}

// NewTimeTrackingServiceWithLogger constructs a TimeTrackingService with a specified logger.
func NewTimeTrackingServiceWithLogger(entries persistence.TimeEntryRepository, users persistence.UserRepository, location *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TimeTrackingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TimeTrackingService{
		entries:     entries,
		users:       users,
		location:    locationOrDefault(location),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *TimeTrackingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TimeTrackingService", operation, attrs...)
}

// ClockIn opens a new entry for the caller.
func (s *TimeTrackingService) ClockIn(ctx context.Context, principal Principal, input ClockInput) (result TimeEntry, err error) {
	if s == nil {
		err = fmt.Errorf("TimeTrackingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "ClockIn", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "clocked in", "time_entry_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	if _, lookupErr := s.entries.GetActiveEntry(ctx, principal.UserID); lookupErr == nil {
		err = badRequest("already clocked in")
		return
	} else if !isStoreNotFound(lookupErr) {
		err = lookupErr
		return
	}

	now := s.now()
	entry := persistence.TimeEntry{
		ID:        s.idGenerator(),
		UserID:    principal.UserID,
		TimeIn:    now,
		Status:    EntryStatusActive,
		Notes:     strings.TrimSpace(input.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.entries.CreateActiveEntry(ctx, entry); err != nil {
		// A concurrent clock-in lost the race on the active entry index.
		if errors.Is(err, persistence.ErrDuplicate) {
			err = badRequest("already clocked in")
		}
		return
	}
	result = timeEntryFromRecord(entry)
	return
}

// ClockOut closes the caller's active entry and any open break at the same instant.
func (s *TimeTrackingService) ClockOut(ctx context.Context, principal Principal, input ClockInput) (result TimeEntry, err error) {
	if s == nil {
		err = fmt.Errorf("TimeTrackingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "ClockOut", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "clocked out", "time_entry_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var entry persistence.TimeEntry
	if entry, err = s.entries.GetActiveEntry(ctx, principal.UserID); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("not clocked in")
		}
		return
	}

	now := s.now()
	hours, status := shiftOutcome(entry.TimeIn, now)
	entry.TimeOut = &now
	entry.TotalHours = &hours
	entry.Status = status
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		entry.Notes = notes
	}
	entry.UpdatedAt = now

	if err = s.entries.CloseEntry(ctx, entry); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("not clocked in")
		}
		return
	}

	result = timeEntryFromRecord(entry)
	result.Breaks, err = s.breaksFor(ctx, entry.ID)
	return
}

// StartBreak opens a break on the caller's active entry.
func (s *TimeTrackingService) StartBreak(ctx context.Context, principal Principal) (result BreakLog, err error) {
	if s == nil {
		err = fmt.Errorf("TimeTrackingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "StartBreak", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "break started", "break_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}

	var entry persistence.TimeEntry
	if entry, err = s.entries.GetActiveEntry(ctx, principal.UserID); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("not clocked in")
		}
		return
	}

	now := s.now()
	breakLog := persistence.BreakLog{
		ID:          s.idGenerator(),
		TimeEntryID: entry.ID,
		UserID:      principal.UserID,
		StartTime:   now,
		CreatedAt:   now,
	}
	if err = s.entries.StartBreak(ctx, breakLog); err != nil {
		switch {
		case errors.Is(err, persistence.ErrDuplicate):
			err = badRequest("a break is already in progress")
		case isStoreNotFound(err):
			err = badRequest("not clocked in")
		}
		return
	}
	result = breakFromRecord(breakLog)
	return
}

// EndBreak closes the caller's open break.
func (s *TimeTrackingService) EndBreak(ctx context.Context, principal Principal) (result BreakLog, err error) {
	if s == nil {
		err = fmt.Errorf("TimeTrackingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "EndBreak", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "break ended", "break_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}

	var (
		entry    persistence.TimeEntry
		breakLog persistence.BreakLog
	)
	if entry, err = s.entries.GetActiveEntry(ctx, principal.UserID); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("no break in progress")
		}
		return
	}
	if breakLog, err = s.entries.GetOpenBreak(ctx, entry.ID); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("no break in progress")
		}
		return
	}

	now := s.now()
	minutes := breakMinutes(breakLog.StartTime, now)
	breakLog.EndTime = &now
	breakLog.DurationMinutes = &minutes
	if err = s.entries.EndBreak(ctx, breakLog); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("no break in progress")
		}
		return
	}
	result = breakFromRecord(breakLog)
	return
}

// Status reports the caller's clock state.
func (s *TimeTrackingService) Status(ctx context.Context, principal Principal) (TrackingStatus, error) {
	if s == nil {
		return TrackingStatus{}, fmt.Errorf("TimeTrackingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return TrackingStatus{}, err
	}
	return s.statusFor(ctx, principal.UserID)
}

func (s *TimeTrackingService) statusFor(ctx context.Context, userID string) (TrackingStatus, error) {
	now := s.now()
	status := TrackingStatus{State: TrackingIdle}

	dayStart := startOfDay(now, s.location)
	dayEnd := dayStart.AddDate(0, 0, 1)
	today, err := s.entries.ListEntries(ctx, persistence.TimeEntryFilter{UserID: userID, From: &dayStart, To: &dayEnd})
	if err != nil {
		return TrackingStatus{}, err
	}
	breaks, err := s.entries.ListBreaks(ctx, entryIDs(today))
	if err != nil {
		return TrackingStatus{}, err
	}
	for _, b := range breaks {
		if b.DurationMinutes != nil {
			status.BreakMinutesToday += *b.DurationMinutes
		} else {
			status.BreakMinutesToday += breakMinutes(b.StartTime, now)
		}
	}

	active, err := s.entries.GetActiveEntry(ctx, userID)
	if err != nil {
		if isStoreNotFound(err) {
			return status, nil
		}
		return TrackingStatus{}, err
	}
	view := timeEntryFromRecord(active)
	status.State = TrackingActive
	status.Entry = &view
	status.ElapsedHours = hoursBetween(active.TimeIn, now)

	open, err := s.entries.GetOpenBreak(ctx, active.ID)
	switch {
	case err == nil:
		b := breakFromRecord(open)
		status.State = TrackingOnBreak
		status.Break = &b
	case !isStoreNotFound(err):
		return TrackingStatus{}, err
	}
	return status, nil
}

// History returns the caller's entries with their breaks, newest first.
func (s *TimeTrackingService) History(ctx context.Context, principal Principal, input HistoryInput) ([]TimeEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("TimeTrackingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}

	filter := persistence.TimeEntryFilter{UserID: principal.UserID}
	from, to, err := s.dateBounds(input.From, input.To)
	if err != nil {
		return nil, err
	}
	filter.From, filter.To = from, to

	records, err := s.entries.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.withBreaks(ctx, records)
}

// AverageHoursByDay reports the mean hours of closed entries per calendar day over the
// trailing window ending today, oldest day first.
func (s *TimeTrackingService) AverageHoursByDay(ctx context.Context, principal Principal, input AverageHoursInput) ([]DailyHours, error) {
	if s == nil {
		return nil, fmt.Errorf("TimeTrackingService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(input.UserID)
	switch {
	case userID == "":
		userID = principal.UserID
	case userID != principal.UserID && !principal.IsAdmin():
		return nil, forbidden("employees may only view their own hours")
	}
	days := input.Days
	if days == 0 {
		days = defaultAverageDays
	}
	return s.averageHours(ctx, userID, days)
}

func (s *TimeTrackingService) averageHours(ctx context.Context, userID string, days int) ([]DailyHours, error) {
	today := startOfDay(s.now(), s.location)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	records, err := s.entries.ListEntries(ctx, persistence.TimeEntryFilter{UserID: userID, From: &from, To: &to, ClosedOnly: true})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		total float64
		count int
	}
	buckets := make(map[string]*bucket, days)
	for _, r := range records {
		if r.Status != EntryStatusCompleted && r.Status != EntryStatusEarlyOut {
			continue
		}
		hours, ok := entryHours(r)
		if !ok {
			continue
		}
		key := formatDate(r.TimeIn, s.location)
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.total += hours
		b.count++
	}

	result := make([]DailyHours, 0, days)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := formatDate(d, s.location)
		row := DailyHours{Date: key}
		if b := buckets[key]; b != nil && b.count > 0 {
			row.Hours = round2(b.total / float64(b.count))
			row.Entries = b.count
		}
		result = append(result, row)
	}
	return result, nil
}

// hoursOn sums the closed hours plus the running hours of an active entry for the day
// containing reference.
func (s *TimeTrackingService) hoursOn(ctx context.Context, userID string, reference time.Time) (float64, error) {
	from := startOfDay(reference, s.location)
	to := from.AddDate(0, 0, 1)
	records, err := s.entries.ListEntries(ctx, persistence.TimeEntryFilter{UserID: userID, From: &from, To: &to})
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, r := range records {
		if hours, ok := entryHours(r); ok {
			total += hours
		} else if r.TimeOut == nil {
			total += hoursBetween(r.TimeIn, s.now())
		}
	}
	return round2(total), nil
}

// Attendance lists entries of every user, or one user, in the inclusive date range.
func (s *TimeTrackingService) Attendance(ctx context.Context, principal Principal, input AttendanceInput) ([]AttendanceRow, error) {
	if s == nil {
		return nil, fmt.Errorf("TimeTrackingService is nil")
	}
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	from, to, err := s.dateBounds(input.From, input.To)
	if err != nil {
		return nil, err
	}

	records, err := s.entries.ListEntries(ctx, persistence.TimeEntryFilter{UserID: strings.TrimSpace(input.UserID), From: from, To: to})
	if err != nil {
		return nil, err
	}
	entries, err := s.withBreaks(ctx, records)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	if s.users != nil {
		users, err := s.users.ListUsers(ctx, persistence.UserFilter{})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}

	rows := make([]AttendanceRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, AttendanceRow{TimeEntry: e, UserName: names[e.UserID]})
	}
	return rows, nil
}

// CorrectEntry rewrites an entry's timestamps and recomputes hours and status.
func (s *TimeTrackingService) CorrectEntry(ctx context.Context, principal Principal, input CorrectEntryInput) (result TimeEntry, err error) {
	if s == nil {
		err = fmt.Errorf("TimeTrackingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "CorrectEntry", "user_id", principal.UserID, "time_entry_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "time entry corrected") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	if input.TimeOut != nil && !input.TimeOut.After(input.TimeIn) {
		vErr.add("timeOut", "timeOut must be after timeIn")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var entry persistence.TimeEntry
	if entry, err = s.entries.GetEntry(ctx, input.ID); err != nil {
		err = mapStoreError(err, "time entry")
		return
	}

	entry.TimeIn = input.TimeIn
	entry.TimeOut = input.TimeOut
	if input.TimeOut != nil {
		hours, status := shiftOutcome(input.TimeIn, *input.TimeOut)
		entry.TotalHours = &hours
		entry.Status = status
	} else {
		entry.TotalHours = nil
		entry.Status = EntryStatusActive
	}
	if input.Notes != nil {
		entry.Notes = strings.TrimSpace(*input.Notes)
	}
	entry.UpdatedAt = s.now()

	if err = s.entries.UpdateEntry(ctx, entry); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = conflict("the user already has an active time entry")
			return
		}
		err = mapStoreError(err, "time entry")
		return
	}
	result = timeEntryFromRecord(entry)
	result.Breaks, err = s.breaksFor(ctx, entry.ID)
	return
}

// dateBounds converts inclusive YYYY-MM-DD bounds to a half-open instant range.
func (s *TimeTrackingService) dateBounds(fromDate, toDate string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromDate != "" {
		t, err := parseDate(fromDate, s.location)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if toDate != "" {
		t, err := parseDate(toDate, s.location)
		if err != nil {
			return nil, nil, err
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		vErr := &ValidationError{}
		vErr.add("to", "to must not be before from")
		return nil, nil, vErr
	}
	return from, to, nil
}

func (s *TimeTrackingService) breaksFor(ctx context.Context, entryID string) ([]BreakLog, error) {
	records, err := s.entries.ListBreaks(ctx, []string{entryID})
	if err != nil {
		return nil, err
	}
	breaks := make([]BreakLog, 0, len(records))
	for _, b := range records {
		breaks = append(breaks, breakFromRecord(b))
	}
	return breaks, nil
}

func (s *TimeTrackingService) withBreaks(ctx context.Context, records []persistence.TimeEntry) ([]TimeEntry, error) {
	breaks, err := s.entries.ListBreaks(ctx, entryIDs(records))
	if err != nil {
		return nil, err
	}
	byEntry := make(map[string][]BreakLog, len(records))
	for _, b := range breaks {
		byEntry[b.TimeEntryID] = append(byEntry[b.TimeEntryID], breakFromRecord(b))
	}

	entries := make([]TimeEntry, 0, len(records))
	for _, r := range records {
		e := timeEntryFromRecord(r)
		e.Breaks = byEntry[r.ID]
		entries = append(entries, e)
	}
	return entries, nil
}

func entryIDs(records []persistence.TimeEntry) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

// shiftOutcome computes the rounded hours of a closed shift and its status. Break time is
// not subtracted.
func shiftOutcome(timeIn, timeOut time.Time) (float64, string) {
	hours := hoursBetween(timeIn, timeOut)
	if hours < earlyOutThreshold {
		return hours, EntryStatusEarlyOut
	}
	return hours, EntryStatusCompleted
}

func breakMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// entryHours returns the stored hours of a closed entry, recomputing them from the
// timestamps when absent.
func entryHours(r persistence.TimeEntry) (float64, bool) {
	if r.TotalHours != nil {
		return *r.TotalHours, true
	}
	if r.TimeOut != nil {
		return hoursBetween(r.TimeIn, *r.TimeOut), true
	}
	return 0, false
}
