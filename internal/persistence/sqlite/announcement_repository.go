package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/hrms/internal/persistence"
)

const announcementColumns = `id, author_id, title, content, priority, created_at, updated_at`

// AnnouncementRepository implements persistence.AnnouncementRepository using SQLite.
type AnnouncementRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAnnouncementRepository creates a new SQLite announcement repository.
func NewAnnouncementRepository(pool *ConnectionPool) *AnnouncementRepository {
	return &AnnouncementRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateAnnouncement inserts an announcement.
func (r *AnnouncementRepository) CreateAnnouncement(ctx context.Context, announcement persistence.Announcement) error {
	if announcement.ID == "" || announcement.AuthorID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT INTO announcements (`+announcementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		announcement.ID,
		announcement.AuthorID,
		announcement.Title,
		announcement.Content,
		announcement.Priority,
		toMillis(announcement.CreatedAt),
		toMillis(announcement.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateAnnouncement overwrites title, content and priority.
func (r *AnnouncementRepository) UpdateAnnouncement(ctx context.Context, announcement persistence.Announcement) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE announcements SET title = ?, content = ?, priority = ?, updated_at = ? WHERE id = ?`,
		announcement.Title,
		announcement.Content,
		announcement.Priority,
		toMillis(announcement.UpdatedAt),
		announcement.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// GetAnnouncement retrieves an announcement by ID.
func (r *AnnouncementRepository) GetAnnouncement(ctx context.Context, id string) (persistence.Announcement, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = ?`, id)
	announcement, err := scanAnnouncement(row)
	if err != nil {
		return persistence.Announcement{}, r.mapper.MapError(err)
	}
	return announcement, nil
}

// DeleteAnnouncement removes an announcement and its read records in one transaction.
func (r *AnnouncementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM announcement_reads WHERE announcement_id = ?`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectAffected(result)
	})
	return r.mapper.MapError(err)
}

// ListAnnouncements returns every announcement, newest first. Ranking is applied by the
// caller.
func (r *AnnouncementRepository) ListAnnouncements(ctx context.Context) ([]persistence.Announcement, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+announcementColumns+` FROM announcements ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	announcements := make([]persistence.Announcement, 0)
	for rows.Next() {
		announcement, err := scanAnnouncement(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		announcements = append(announcements, announcement)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return announcements, nil
}

// MarkAnnouncementRead records a read receipt. Repeated reads keep the first timestamp.
func (r *AnnouncementRepository) MarkAnnouncementRead(ctx context.Context, read persistence.AnnouncementRead) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO announcement_reads (announcement_id, user_id, read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (announcement_id, user_id) DO NOTHING
	`, read.AnnouncementID, read.UserID, toMillis(read.ReadAt))
	return r.mapper.MapError(err)
}

// ListAnnouncementReads returns every read receipt of a user.
func (r *AnnouncementRepository) ListAnnouncementReads(ctx context.Context, userID string) ([]persistence.AnnouncementRead, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT announcement_id, user_id, read_at FROM announcement_reads WHERE user_id = ?`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	reads := make([]persistence.AnnouncementRead, 0)
	for rows.Next() {
		var (
			read   persistence.AnnouncementRead
			readAt int64
		)
		if err := rows.Scan(&read.AnnouncementID, &read.UserID, &readAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		read.ReadAt = fromMillis(readAt)
		reads = append(reads, read)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return reads, nil
}

// CountAnnouncementReads counts read receipts for an announcement.
func (r *AnnouncementRepository) CountAnnouncementReads(ctx context.Context, announcementID string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(*) FROM announcement_reads WHERE announcement_id = ?`, announcementID,
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

func scanAnnouncement(row rowScanner) (persistence.Announcement, error) {
	var (
		announcement         persistence.Announcement
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&announcement.ID,
		&announcement.AuthorID,
		&announcement.Title,
		&announcement.Content,
		&announcement.Priority,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Announcement{}, err
	}
	announcement.CreatedAt = fromMillis(createdAt)
	announcement.UpdatedAt = fromMillis(updatedAt)
	return announcement, nil
}
