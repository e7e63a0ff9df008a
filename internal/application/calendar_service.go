package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/recurrence"
)

// Calendar view item kinds.
const (
	CalendarItemEvent   = "event"
	CalendarItemMeeting = "meeting"
	CalendarItemLeave   = "leave"
)

// CalendarEventInput describes a personal calendar event.
type CalendarEventInput struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=2000"`
	StartTime       time.Time  `json:"startTime" validate:"required"`
	EndTime         time.Time  `json:"endTime" validate:"required"`
	AllDay          bool       `json:"allDay"`
	Recurrence      string     `json:"recurrence" validate:"omitempty,oneof=none daily weekly"`
	RecurrenceDays  []int      `json:"recurrenceDays" validate:"omitempty,dive,min=0,max=6"`
	RecurrenceUntil *time.Time `json:"recurrenceUntil"`
}

// UpdateCalendarEventInput replaces a personal calendar event.
type UpdateCalendarEventInput struct {
	ID              string     `json:"id" validate:"required"`
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=2000"`
	StartTime       time.Time  `json:"startTime" validate:"required"`
	EndTime         time.Time  `json:"endTime" validate:"required"`
	AllDay          bool       `json:"allDay"`
	Recurrence      string     `json:"recurrence" validate:"omitempty,oneof=none daily weekly"`
	RecurrenceDays  []int      `json:"recurrenceDays" validate:"omitempty,dive,min=0,max=6"`
	RecurrenceUntil *time.Time `json:"recurrenceUntil"`
}

// EventsInput selects raw events whose occurrences may fall into [From, To).
type EventsInput struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required"`
}

// CalendarViewInput selects the merged calendar range. A preset is resolved around
// Reference (default now); without a preset From and To are required.
type CalendarViewInput struct {
	Range     RangePreset `json:"range" validate:"omitempty,oneof=day week month"`
	Reference *time.Time  `json:"reference"`
	From      *time.Time  `json:"from"`
	To        *time.Time  `json:"to"`
}

// CalendarService manages personal events and builds the merged calendar view.
type CalendarService struct {
	events      persistence.CalendarRepository
	meetings    persistence.MeetingRepository
	leaves      persistence.LeaveRepository
	engine      *recurrence.Engine
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCalendarService constructs a CalendarService.
func NewCalendarService(events persistence.CalendarRepository, meetings persistence.MeetingRepository, leaves persistence.LeaveRepository, location *time.Location, idGenerator func() string, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(events, meetings, leaves, location, idGenerator, now, nil)
}

// NewCalendarServiceWithLogger constructs a CalendarService with a specified logger.
func NewCalendarServiceWithLogger(events persistence.CalendarRepository, meetings persistence.MeetingRepository, leaves persistence.LeaveRepository, location *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	location = locationOrDefault(location)
	return &CalendarService{
		events:      events,
		meetings:    meetings,
		leaves:      leaves,
		engine:      recurrence.NewEngine(location),
		location:    location,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// CreateEvent stores a personal event for the caller.
func (s *CalendarService) CreateEvent(ctx context.Context, principal Principal, input CalendarEventInput) (result CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}
	logger := s.loggerWith(ctx, "CreateEvent", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "calendar event created", "event_id", result.ID) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateInput(input)
	checkTimeOrder(vErr, input.StartTime, input.EndTime)
	checkRecurrenceUntil(vErr, input.StartTime, input.RecurrenceUntil)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	now := s.now()
	record := persistence.CalendarEvent{
		ID:              s.idGenerator(),
		UserID:          principal.UserID,
		Title:           input.Title,
		Description:     strings.TrimSpace(input.Description),
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		AllDay:          input.AllDay,
		Recurrence:      recurrenceLabel(input.Recurrence),
		RecurrenceDays:  toWeekdays(input.RecurrenceDays),
		RecurrenceUntil: input.RecurrenceUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.events.CreateEvent(ctx, record); err != nil {
		err = mapStoreError(err, "calendar event")
		return
	}
	result = calendarEventFromRecord(record)
	return
}

// UpdateEvent replaces one of the caller's events.
func (s *CalendarService) UpdateEvent(ctx context.Context, principal Principal, input UpdateCalendarEventInput) (result CalendarEvent, err error) {
	if s == nil {
		err = fmt.Errorf("CalendarService is nil")
		return
	}
	logger := s.loggerWith(ctx, "UpdateEvent", "user_id", principal.UserID, "event_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "calendar event updated") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	vErr := validateInput(input)
	checkTimeOrder(vErr, input.StartTime, input.EndTime)
	checkRecurrenceUntil(vErr, input.StartTime, input.RecurrenceUntil)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var record persistence.CalendarEvent
	if record, err = s.ownedEvent(ctx, principal, input.ID); err != nil {
		return
	}
	record.Title = input.Title
	record.Description = strings.TrimSpace(input.Description)
	record.StartTime = input.StartTime
	record.EndTime = input.EndTime
	record.AllDay = input.AllDay
	record.Recurrence = recurrenceLabel(input.Recurrence)
	record.RecurrenceDays = toWeekdays(input.RecurrenceDays)
	record.RecurrenceUntil = input.RecurrenceUntil
	record.UpdatedAt = s.now()
	if err = s.events.UpdateEvent(ctx, record); err != nil {
		err = mapStoreError(err, "calendar event")
		return
	}
	result = calendarEventFromRecord(record)
	return
}

// DeleteEvent removes one of the caller's events.
func (s *CalendarService) DeleteEvent(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("CalendarService is nil")
	}
	logger := s.loggerWith(ctx, "DeleteEvent", "user_id", principal.UserID, "event_id", id)
	defer func() { logOutcome(ctx, logger, err, "calendar event deleted") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if _, err = s.ownedEvent(ctx, principal, id); err != nil {
		return
	}
	err = mapStoreError(s.events.DeleteEvent(ctx, id), "calendar event")
	return
}

// Events returns the caller's stored events that can produce an occurrence in the range.
func (s *CalendarService) Events(ctx context.Context, principal Principal, input EventsInput) ([]CalendarEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("CalendarService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	vErr := validateInput(input)
	if !input.From.IsZero() && !input.To.IsZero() && !input.To.After(input.From) {
		vErr.add("to", "to must be after from")
	}
	if err := vErr.errOrNil(); err != nil {
		return nil, err
	}

	records, err := s.events.ListEvents(ctx, principal.UserID, input.From, input.To)
	if err != nil {
		return nil, err
	}
	events := make([]CalendarEvent, 0, len(records))
	for _, r := range records {
		events = append(events, calendarEventFromRecord(r))
	}
	return events, nil
}

// View merges expanded personal events, the caller's meetings, and approved leaves in
// the requested range, ordered by start.
func (s *CalendarService) View(ctx context.Context, principal Principal, input CalendarViewInput) ([]CalendarItem, error) {
	if s == nil {
		return nil, fmt.Errorf("CalendarService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	from, to, err := s.viewWindow(input)
	if err != nil {
		return nil, err
	}

	items := make([]CalendarItem, 0)

	events, err := s.events.ListEvents(ctx, principal.UserID, from, to)
	if err != nil {
		return nil, err
	}
	window := recurrence.Window{Start: from, End: to}
	for _, event := range events {
		frequency, err := recurrence.ParseFrequency(event.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.ID, err)
		}
		occurrences, err := s.engine.Expand(recurrence.Rule{
			EventID:   event.ID,
			Frequency: frequency,
			Weekdays:  event.RecurrenceDays,
			Until:     event.RecurrenceUntil,
		}, event.StartTime, event.EndTime, window)
		if err != nil {
			return nil, fmt.Errorf("expand event %s: %w", event.ID, err)
		}
		for _, o := range occurrences {
			items = append(items, CalendarItem{
				Kind:     CalendarItemEvent,
				SourceID: event.ID,
				Title:    event.Title,
				Start:    o.Start,
				End:      o.End,
				AllDay:   event.AllDay,
			})
		}
	}

	meetings, err := s.meetings.ListMeetings(ctx, persistence.MeetingFilter{UserID: principal.UserID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	for _, m := range meetings {
		items = append(items, CalendarItem{
			Kind:     CalendarItemMeeting,
			SourceID: m.ID,
			Title:    m.Title,
			Start:    m.StartTime.In(s.location),
			End:      m.EndTime.In(s.location),
		})
	}

	leaves, err := s.leaves.ListLeaves(ctx, persistence.LeaveFilter{
		UserID:   principal.UserID,
		Statuses: []string{LeaveStatusApproved},
		From:     formatDate(from, s.location),
		To:       formatDate(to.Add(-time.Nanosecond), s.location),
	})
	if err != nil {
		return nil, err
	}
	for _, l := range leaves {
		start, errStart := parseDate(l.StartDate, s.location)
		end, errEnd := parseDate(l.EndDate, s.location)
		if errStart != nil || errEnd != nil {
			continue
		}
		items = append(items, CalendarItem{
			Kind:     CalendarItemLeave,
			SourceID: l.ID,
			Title:    leaveTitle(l.LeaveType),
			Start:    start,
			End:      end.AddDate(0, 0, 1),
			AllDay:   true,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].SourceID < items[j].SourceID
	})
	return items, nil
}

func (s *CalendarService) viewWindow(input CalendarViewInput) (time.Time, time.Time, error) {
	vErr := validateInput(input)
	if input.Range != RangeNone {
		if err := vErr.errOrNil(); err != nil {
			return time.Time{}, time.Time{}, err
		}
		reference := s.now()
		if input.Reference != nil {
			reference = *input.Reference
		}
		from, to := computePeriodRange(input.Range, reference, s.location)
		return from, to, nil
	}

	if input.From == nil {
		vErr.add("from", "from is required without a range")
	}
	if input.To == nil {
		vErr.add("to", "to is required without a range")
	}
	if input.From != nil && input.To != nil && !input.To.After(*input.From) {
		vErr.add("to", "to must be after from")
	}
	if err := vErr.errOrNil(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return *input.From, *input.To, nil
}

func (s *CalendarService) ownedEvent(ctx context.Context, principal Principal, id string) (persistence.CalendarEvent, error) {
	record, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return persistence.CalendarEvent{}, mapStoreError(err, "calendar event")
	}
	if record.UserID != principal.UserID {
		return persistence.CalendarEvent{}, forbidden("the event belongs to another user")
	}
	return record, nil
}

func checkRecurrenceUntil(vErr *ValidationError, start time.Time, until *time.Time) {
	if until != nil && !start.IsZero() && until.Before(start) {
		vErr.add("recurrenceUntil", "recurrenceUntil must not be before startTime")
	}
}

func recurrenceLabel(value string) string {
	frequency, err := recurrence.ParseFrequency(value)
	if err != nil {
		return recurrence.FrequencyNone.String()
	}
	return frequency.String()
}

func toWeekdays(days []int) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(days))
	weekdays := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		weekdays = append(weekdays, time.Weekday(d))
	}
	sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })
	return weekdays
}

func leaveTitle(leaveType string) string {
	switch leaveType {
	case "annual":
		return "年次有給休暇"
	case "sick":
		return "病気休暇"
	case "personal":
		return "私用休暇"
	case "unpaid":
		return "無給休暇"
	}
	return "休暇"
}
