package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

const timeEntryColumns = `id, user_id, time_in, time_out, total_hours, status, notes, created_at, updated_at`

const breakLogColumns = `id, time_entry_id, user_id, start_time, end_time, duration_minutes, created_at`

// TimeEntryRepository implements persistence.TimeEntryRepository using SQLite.
//
// The single-active-entry and single-open-break rules are enforced by partial unique
// indexes, so concurrent writers cannot both succeed.
type TimeEntryRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTimeEntryRepository creates a new SQLite time entry repository.
func NewTimeEntryRepository(pool *ConnectionPool) *TimeEntryRepository {
	return &TimeEntryRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateActiveEntry inserts an open entry. A second open entry for the same user fails
// with persistence.ErrDuplicate.
func (r *TimeEntryRepository) CreateActiveEntry(ctx context.Context, entry persistence.TimeEntry) error {
	if entry.ID == "" || entry.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO time_entries (id, user_id, time_in, time_out, total_hours, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, NULL, NULL, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		toMillis(entry.TimeIn),
		entry.Status,
		entry.Notes,
		toMillis(entry.CreatedAt),
		toMillis(entry.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetActiveEntry returns the user's open entry or persistence.ErrNotFound.
func (r *TimeEntryRepository) GetActiveEntry(ctx context.Context, userID string) (persistence.TimeEntry, error) {
	row := r.helper.QueryRow(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id = ? AND time_out IS NULL`, userID)
	entry, err := scanTimeEntry(row)
	if err != nil {
		return persistence.TimeEntry{}, r.mapper.MapError(err)
	}
	return entry, nil
}

// GetEntry retrieves an entry by ID.
func (r *TimeEntryRepository) GetEntry(ctx context.Context, id string) (persistence.TimeEntry, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id)
	entry, err := scanTimeEntry(row)
	if err != nil {
		return persistence.TimeEntry{}, r.mapper.MapError(err)
	}
	return entry, nil
}

// CloseEntry sets time_out on an entry that is still open and closes its open break at
// the same instant. It returns persistence.ErrNotFound when the entry was already closed.
func (r *TimeEntryRepository) CloseEntry(ctx context.Context, entry persistence.TimeEntry) error {
	if entry.TimeOut == nil {
		return persistence.ErrConstraintViolation
	}
	timeOut := toMillis(*entry.TimeOut)

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE time_entries
			SET time_out = ?, total_hours = ?, status = ?, notes = ?, updated_at = ?
			WHERE id = ? AND time_out IS NULL
		`,
			timeOut,
			nullFloat(entry.TotalHours),
			entry.Status,
			entry.Notes,
			toMillis(entry.UpdatedAt),
			entry.ID,
		)
		if err != nil {
			return err
		}
		if err := expectAffected(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE break_logs
			SET end_time = ?, duration_minutes = CAST(ROUND((? - start_time) / 60000.0) AS INTEGER)
			WHERE time_entry_id = ? AND end_time IS NULL
		`, timeOut, timeOut, entry.ID)
		return err
	})
	return r.mapper.MapError(err)
}

// UpdateEntry overwrites an entry's timestamps, hours, status and notes. When the entry
// is closed, breaks still open or ending after time_out are clamped to it in the same
// transaction, so an open break never outlives its entry.
func (r *TimeEntryRepository) UpdateEntry(ctx context.Context, entry persistence.TimeEntry) error {
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE time_entries
			SET time_in = ?, time_out = ?, total_hours = ?, status = ?, notes = ?, updated_at = ?
			WHERE id = ?
		`,
			toMillis(entry.TimeIn),
			nullMillis(entry.TimeOut),
			nullFloat(entry.TotalHours),
			entry.Status,
			entry.Notes,
			toMillis(entry.UpdatedAt),
			entry.ID,
		)
		if err != nil {
			return err
		}
		if err := expectAffected(result); err != nil {
			return err
		}
		if entry.TimeOut == nil {
			return nil
		}

		timeOut := toMillis(*entry.TimeOut)
		_, err = tx.ExecContext(ctx, `
			UPDATE break_logs
			SET end_time = MAX(start_time, ?),
				duration_minutes = CAST(ROUND((MAX(start_time, ?) - start_time) / 60000.0) AS INTEGER)
			WHERE time_entry_id = ? AND (end_time IS NULL OR end_time > ?)
		`, timeOut, timeOut, entry.ID, timeOut)
		return err
	})
	return r.mapper.MapError(err)
}

// ListEntries returns entries matching the filter, newest first. From and To bound
// time_in as a half-open range.
func (r *TimeEntryRepository) ListEntries(ctx context.Context, filter persistence.TimeEntryFilter) ([]persistence.TimeEntry, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.From != nil {
		conditions = append(conditions, "time_in >= ?")
		args = append(args, toMillis(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "time_in < ?")
		args = append(args, toMillis(*filter.To))
	}
	if filter.ClosedOnly {
		conditions = append(conditions, "time_out IS NOT NULL")
	}

	query := `SELECT ` + timeEntryColumns + ` FROM time_entries`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY time_in DESC, id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	entries := make([]persistence.TimeEntry, 0)
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}

// CountActiveEntries counts users currently clocked in.
func (r *TimeEntryRepository) CountActiveEntries(ctx context.Context) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM time_entries WHERE time_out IS NULL`).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// StartBreak inserts an open break only while its entry is still active. It returns
// persistence.ErrNotFound when the entry is closed and persistence.ErrDuplicate when a
// break is already open.
func (r *TimeEntryRepository) StartBreak(ctx context.Context, breakLog persistence.BreakLog) error {
	if breakLog.ID == "" || breakLog.TimeEntryID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		INSERT INTO break_logs (id, time_entry_id, user_id, start_time, end_time, duration_minutes, created_at)
		SELECT ?, ?, ?, ?, NULL, NULL, ?
		WHERE EXISTS (SELECT 1 FROM time_entries WHERE id = ? AND time_out IS NULL)
	`,
		breakLog.ID,
		breakLog.TimeEntryID,
		breakLog.UserID,
		toMillis(breakLog.StartTime),
		toMillis(breakLog.CreatedAt),
		breakLog.TimeEntryID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// GetOpenBreak returns the open break of an entry or persistence.ErrNotFound.
func (r *TimeEntryRepository) GetOpenBreak(ctx context.Context, timeEntryID string) (persistence.BreakLog, error) {
	row := r.helper.QueryRow(ctx,
		`SELECT `+breakLogColumns+` FROM break_logs WHERE time_entry_id = ? AND end_time IS NULL`, timeEntryID)
	breakLog, err := scanBreakLog(row)
	if err != nil {
		return persistence.BreakLog{}, r.mapper.MapError(err)
	}
	return breakLog, nil
}

// EndBreak closes a break that is still open.
func (r *TimeEntryRepository) EndBreak(ctx context.Context, breakLog persistence.BreakLog) error {
	if breakLog.EndTime == nil {
		return persistence.ErrConstraintViolation
	}
	result, err := r.helper.Exec(ctx,
		`UPDATE break_logs SET end_time = ?, duration_minutes = ? WHERE id = ? AND end_time IS NULL`,
		toMillis(*breakLog.EndTime),
		nullInt(breakLog.DurationMinutes),
		breakLog.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListBreaks returns the breaks of the given entries ordered by start time.
func (r *TimeEntryRepository) ListBreaks(ctx context.Context, timeEntryIDs []string) ([]persistence.BreakLog, error) {
	breaks := make([]persistence.BreakLog, 0)
	if len(timeEntryIDs) == 0 {
		return breaks, nil
	}

	query := `SELECT ` + breakLogColumns + ` FROM break_logs WHERE time_entry_id IN (` +
		placeholders(len(timeEntryIDs)) + `) ORDER BY start_time ASC, id ASC`
	rows, err := r.helper.Query(ctx, query, stringArgs(timeEntryIDs)...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		breakLog, err := scanBreakLog(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		breaks = append(breaks, breakLog)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return breaks, nil
}

func scanTimeEntry(row rowScanner) (persistence.TimeEntry, error) {
	var (
		entry                persistence.TimeEntry
		timeIn               int64
		timeOut              sql.NullInt64
		totalHours           sql.NullFloat64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&timeIn,
		&timeOut,
		&totalHours,
		&entry.Status,
		&entry.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.TimeEntry{}, err
	}
	entry.TimeIn = fromMillis(timeIn)
	entry.TimeOut = timePtr(timeOut)
	entry.TotalHours = floatPtr(totalHours)
	entry.CreatedAt = fromMillis(createdAt)
	entry.UpdatedAt = fromMillis(updatedAt)
	return entry, nil
}

func scanBreakLog(row rowScanner) (persistence.BreakLog, error) {
	var (
		breakLog  persistence.BreakLog
		start     int64
		end       sql.NullInt64
		duration  sql.NullInt64
		createdAt int64
	)
	err := row.Scan(
		&breakLog.ID,
		&breakLog.TimeEntryID,
		&breakLog.UserID,
		&start,
		&end,
		&duration,
		&createdAt,
	)
	if err != nil {
		return persistence.BreakLog{}, err
	}
	breakLog.StartTime = fromMillis(start)
	breakLog.EndTime = timePtr(end)
	breakLog.DurationMinutes = intPtr(duration)
	breakLog.CreatedAt = fromMillis(createdAt)
	return breakLog, nil
}
