package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

const calendarColumns = `id, user_id, title, description, start_time, end_time, all_day,
	recurrence, recurrence_days, recurrence_until, created_at, updated_at`

// CalendarRepository implements persistence.CalendarRepository using SQLite.
type CalendarRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewCalendarRepository creates a new SQLite calendar repository.
func NewCalendarRepository(pool *ConnectionPool) *CalendarRepository {
	return &CalendarRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateEvent inserts a calendar event.
func (r *CalendarRepository) CreateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	if event.ID == "" || event.UserID == "" || !event.EndTime.After(event.StartTime) {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT INTO calendar_events (`+calendarColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.UserID,
		event.Title,
		event.Description,
		toMillis(event.StartTime),
		toMillis(event.EndTime),
		event.AllDay,
		recurrenceOrNone(event.Recurrence),
		encodeWeekdays(event.RecurrenceDays),
		nullMillis(event.RecurrenceUntil),
		toMillis(event.CreatedAt),
		toMillis(event.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateEvent overwrites every mutable column of an event.
func (r *CalendarRepository) UpdateEvent(ctx context.Context, event persistence.CalendarEvent) error {
	if !event.EndTime.After(event.StartTime) {
		return persistence.ErrConstraintViolation
	}
	result, err := r.helper.Exec(ctx, `
		UPDATE calendar_events
		SET title = ?, description = ?, start_time = ?, end_time = ?, all_day = ?,
			recurrence = ?, recurrence_days = ?, recurrence_until = ?, updated_at = ?
		WHERE id = ?
	`,
		event.Title,
		event.Description,
		toMillis(event.StartTime),
		toMillis(event.EndTime),
		event.AllDay,
		recurrenceOrNone(event.Recurrence),
		encodeWeekdays(event.RecurrenceDays),
		nullMillis(event.RecurrenceUntil),
		toMillis(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// GetEvent retrieves an event by ID.
func (r *CalendarRepository) GetEvent(ctx context.Context, id string) (persistence.CalendarEvent, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+calendarColumns+` FROM calendar_events WHERE id = ?`, id)
	event, err := scanCalendarEvent(row)
	if err != nil {
		return persistence.CalendarEvent{}, r.mapper.MapError(err)
	}
	return event, nil
}

// DeleteEvent removes an event.
func (r *CalendarRepository) DeleteEvent(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListEvents returns the user's events that may produce an occurrence inside [from, to).
// Single events must overlap the range; recurring events only need to start before it
// ends and not have expired before it begins. Expansion happens in the caller.
func (r *CalendarRepository) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]persistence.CalendarEvent, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT `+calendarColumns+`
		FROM calendar_events
		WHERE user_id = ?
		  AND start_time < ?
		  AND (
		        (recurrence = 'none' AND end_time > ?)
		     OR (recurrence <> 'none' AND (recurrence_until IS NULL OR recurrence_until >= ?))
		  )
		ORDER BY start_time ASC, id ASC
	`, userID, toMillis(to), toMillis(from), toMillis(from))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	events := make([]persistence.CalendarEvent, 0)
	for rows.Next() {
		event, err := scanCalendarEvent(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

func recurrenceOrNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}

// encodeWeekdays stores weekdays as a comma separated list of integers (0 = Sunday).
func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, day := range days {
		parts[i] = strconv.Itoa(int(day))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(value string) ([]time.Weekday, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < int(time.Sunday) || n > int(time.Saturday) {
			return nil, fmt.Errorf("invalid recurrence weekday %q", part)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

func scanCalendarEvent(row rowScanner) (persistence.CalendarEvent, error) {
	var (
		event                persistence.CalendarEvent
		start, end           int64
		days                 string
		until                sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.Title,
		&event.Description,
		&start,
		&end,
		&event.AllDay,
		&event.Recurrence,
		&days,
		&until,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.CalendarEvent{}, err
	}
	weekdays, err := decodeWeekdays(days)
	if err != nil {
		return persistence.CalendarEvent{}, err
	}
	event.StartTime = fromMillis(start)
	event.EndTime = fromMillis(end)
	event.RecurrenceDays = weekdays
	event.RecurrenceUntil = timePtr(until)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}
