package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

const leaveColumns = `id, user_id, leave_type, start_date, end_date, days, reason, status,
	reviewer_id, review_note, reviewed_at, created_at, updated_at`

// LeaveRepository implements persistence.LeaveRepository using SQLite.
type LeaveRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewLeaveRepository creates a new SQLite leave repository.
func NewLeaveRepository(pool *ConnectionPool) *LeaveRepository {
	return &LeaveRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateLeave inserts a leave request.
func (r *LeaveRepository) CreateLeave(ctx context.Context, leave persistence.LeaveRequest) error {
	if leave.ID == "" || leave.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO leave_requests (` + leaveColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		leave.ID,
		leave.UserID,
		leave.LeaveType,
		leave.StartDate,
		leave.EndDate,
		leave.Days,
		leave.Reason,
		leave.Status,
		nullString(leave.ReviewerID),
		leave.ReviewNote,
		nullMillis(leave.ReviewedAt),
		toMillis(leave.CreatedAt),
		toMillis(leave.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetLeave retrieves a leave request by ID.
func (r *LeaveRepository) GetLeave(ctx context.Context, id string) (persistence.LeaveRequest, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leave_requests WHERE id = ?`, id)
	leave, err := scanLeave(row)
	if err != nil {
		return persistence.LeaveRequest{}, r.mapper.MapError(err)
	}
	return leave, nil
}

// UpdateLeaveStatus writes the review fields only while the stored status still equals
// fromStatus, returning persistence.ErrNotFound otherwise.
func (r *LeaveRepository) UpdateLeaveStatus(ctx context.Context, leave persistence.LeaveRequest, fromStatus string) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE leave_requests
		SET status = ?, reviewer_id = ?, review_note = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		leave.Status,
		nullString(leave.ReviewerID),
		leave.ReviewNote,
		nullMillis(leave.ReviewedAt),
		toMillis(leave.UpdatedAt),
		leave.ID,
		fromStatus,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListLeaves returns leave requests matching the filter, most recent start first. From and
// To select requests overlapping the inclusive date range.
func (r *LeaveRepository) ListLeaves(ctx context.Context, filter persistence.LeaveFilter) ([]persistence.LeaveRequest, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		args = append(args, stringArgs(filter.Statuses)...)
	}
	if filter.From != "" {
		conditions = append(conditions, "end_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "start_date <= ?")
		args = append(args, filter.To)
	}

	query := `SELECT ` + leaveColumns + ` FROM leave_requests`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY start_date DESC, created_at DESC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	leaves := make([]persistence.LeaveRequest, 0)
	for rows.Next() {
		leave, err := scanLeave(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		leaves = append(leaves, leave)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return leaves, nil
}

// CountLeaves counts requests with the given status.
func (r *LeaveRepository) CountLeaves(ctx context.Context, status string) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM leave_requests WHERE status = ?`, status).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

func scanLeave(row rowScanner) (persistence.LeaveRequest, error) {
	var (
		leave                persistence.LeaveRequest
		reviewerID           sql.NullString
		reviewedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&leave.ID,
		&leave.UserID,
		&leave.LeaveType,
		&leave.StartDate,
		&leave.EndDate,
		&leave.Days,
		&leave.Reason,
		&leave.Status,
		&reviewerID,
		&leave.ReviewNote,
		&reviewedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.LeaveRequest{}, err
	}
	leave.ReviewerID = stringPtr(reviewerID)
	leave.ReviewedAt = timePtr(reviewedAt)
	leave.CreatedAt = fromMillis(createdAt)
	leave.UpdatedAt = fromMillis(updatedAt)
	return leave, nil
}
