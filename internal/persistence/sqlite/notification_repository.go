package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/hrms/internal/persistence"
)

const notificationColumns = `id, user_id, kind, title, message, link, read_at, created_at`

// NotificationRepository implements persistence.NotificationRepository using SQLite.
type NotificationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateNotification inserts a notification.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification persistence.Notification) error {
	if notification.ID == "" || notification.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.UserID,
		notification.Kind,
		notification.Title,
		notification.Message,
		notification.Link,
		nullMillis(notification.ReadAt),
		toMillis(notification.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListNotifications returns a user's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]persistence.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	notifications := make([]persistence.Notification, 0)
	for rows.Next() {
		var (
			n         persistence.Notification
			readAt    sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.Link, &readAt, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		n.ReadAt = timePtr(readAt)
		n.CreatedAt = fromMillis(createdAt)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return notifications, nil
}

// CountUnreadNotifications counts a user's unread notifications.
func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// MarkNotificationRead marks one of the user's notifications read. Already-read
// notifications keep their first read time.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, userID, id string, readAt time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		toMillis(readAt), id, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// MarkAllNotificationsRead marks every unread notification of the user read.
func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) (int64, error) {
	result, err := r.helper.Exec(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`,
		toMillis(readAt), userID,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes one of the user's notifications.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}
