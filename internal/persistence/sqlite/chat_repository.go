package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/hrms/internal/persistence"
)

const chatColumns = `id, sender_id, recipient_id, body, attachment_id, read_at, created_at`

// ChatRepository implements persistence.ChatRepository using SQLite.
type ChatRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewChatRepository creates a new SQLite chat repository.
func NewChatRepository(pool *ConnectionPool) *ChatRepository {
	return &ChatRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateMessage inserts a direct message.
func (r *ChatRepository) CreateMessage(ctx context.Context, message persistence.ChatMessage) error {
	if message.ID == "" || message.SenderID == "" || message.RecipientID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT INTO chat_messages (`+chatColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.SenderID,
		message.RecipientID,
		message.Body,
		nullString(message.AttachmentID),
		nullMillis(message.ReadAt),
		toMillis(message.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListConversation returns messages exchanged between two users, newest first. When
// before is set only older messages are returned.
func (r *ChatRepository) ListConversation(ctx context.Context, userID, partnerID string, before *time.Time, limit int) ([]persistence.ChatMessage, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chat_messages
		WHERE ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
	`
	args := []any{userID, partnerID, partnerID, userID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, toMillis(*before))
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

	messages := make([]persistence.ChatMessage, 0)
	for rows.Next() {
		message, err := scanChatMessage(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return messages, nil
}

// ListConversations returns one summary per chat partner, most recent first.
func (r *ChatRepository) ListConversations(ctx context.Context, userID string) ([]persistence.ChatConversation, error) {
	query := `
		WITH partners AS (
			SELECT
				CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS partner_id,
				id,
				ROW_NUMBER() OVER (
					PARTITION BY CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END
					ORDER BY created_at DESC, id DESC
				) AS rn
			FROM chat_messages
			WHERE sender_id = ? OR recipient_id = ?
		)
		SELECT
			p.partner_id,
			m.id, m.sender_id, m.recipient_id, m.body, m.attachment_id, m.read_at, m.created_at,
			(SELECT COUNT(*) FROM chat_messages u
				WHERE u.sender_id = p.partner_id AND u.recipient_id = ? AND u.read_at IS NULL)
		FROM partners p
		JOIN chat_messages m ON m.id = p.id
		WHERE p.rn = 1
		ORDER BY m.created_at DESC
	`
	rows, err := r.helper.Query(ctx, query, userID, userID, userID, userID, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	conversations := make([]persistence.ChatConversation, 0)
	for rows.Next() {
		var (
			conv         persistence.ChatConversation
			attachmentID sql.NullString
			readAt       sql.NullInt64
			createdAt    int64
		)
		err := rows.Scan(
			&conv.PartnerID,
			&conv.LastMessage.ID,
			&conv.LastMessage.SenderID,
			&conv.LastMessage.RecipientID,
			&conv.LastMessage.Body,
			&attachmentID,
			&readAt,
			&createdAt,
			&conv.UnreadCount,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		conv.LastMessage.AttachmentID = stringPtr(attachmentID)
		conv.LastMessage.ReadAt = timePtr(readAt)
		conv.LastMessage.CreatedAt = fromMillis(createdAt)
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return conversations, nil
}

// MarkConversationRead marks unread messages from partnerID to userID as read.
func (r *ChatRepository) MarkConversationRead(ctx context.Context, userID, partnerID string, readAt time.Time) (int64, error) {
	result, err := r.helper.Exec(ctx,
		`UPDATE chat_messages SET read_at = ? WHERE recipient_id = ? AND sender_id = ? AND read_at IS NULL`,
		toMillis(readAt), userID, partnerID,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

// CountUnread counts unread messages addressed to userID.
func (r *ChatRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE recipient_id = ? AND read_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// HasAttachment reports whether uploadID is attached to a message userID sent or received.
func (r *ChatRepository) HasAttachment(ctx context.Context, userID, uploadID string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_messages
			WHERE attachment_id = ? AND (sender_id = ? OR recipient_id = ?)
		)
	`, uploadID, userID, userID).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists == 1, nil
}

func scanChatMessage(row rowScanner) (persistence.ChatMessage, error) {
	var (
		message      persistence.ChatMessage
		attachmentID sql.NullString
		readAt       sql.NullInt64
		createdAt    int64
	)
	err := row.Scan(
		&message.ID,
		&message.SenderID,
		&message.RecipientID,
		&message.Body,
		&attachmentID,
		&readAt,
		&createdAt,
	)
	if err != nil {
		return persistence.ChatMessage{}, err
	}
	message.AttachmentID = stringPtr(attachmentID)
	message.ReadAt = timePtr(readAt)
	message.CreatedAt = fromMillis(createdAt)
	return message, nil
}
