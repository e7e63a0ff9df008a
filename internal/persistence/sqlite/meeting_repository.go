package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

const meetingColumns = `m.id, m.organizer_id, m.title, m.description, m.location, m.meeting_url,
	m.start_time, m.end_time, m.status, m.created_at, m.updated_at`

// MeetingRepository implements persistence.MeetingRepository using SQLite.
type MeetingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateMeeting inserts a meeting and its participants in one transaction.
func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" || meeting.OrganizerID == "" || !meeting.EndTime.After(meeting.StartTime) {
		return persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meetings (id, organizer_id, title, description, location, meeting_url,
				start_time, end_time, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			meeting.ID,
			meeting.OrganizerID,
			meeting.Title,
			meeting.Description,
			meeting.Location,
			meeting.MeetingURL,
			toMillis(meeting.StartTime),
			toMillis(meeting.EndTime),
			meeting.Status,
			toMillis(meeting.CreatedAt),
			toMillis(meeting.UpdatedAt),
		)
		if err != nil {
			return err
		}
		return insertParticipants(ctx, tx, meeting.ID, meeting.Participants)
	})
	return r.mapper.MapError(err)
}

// UpdateMeeting overwrites a meeting and replaces its participant list.
func (r *MeetingRepository) UpdateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if !meeting.EndTime.After(meeting.StartTime) {
		return persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE meetings
			SET title = ?, description = ?, location = ?, meeting_url = ?, start_time = ?,
				end_time = ?, status = ?, updated_at = ?
			WHERE id = ?
		`,
			meeting.Title,
			meeting.Description,
			meeting.Location,
			meeting.MeetingURL,
			toMillis(meeting.StartTime),
			toMillis(meeting.EndTime),
			meeting.Status,
			toMillis(meeting.UpdatedAt),
			meeting.ID,
		)
		if err != nil {
			return err
		}
		if err := expectAffected(result); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_participants WHERE meeting_id = ?`, meeting.ID); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, meeting.ID, meeting.Participants)
	})
	return r.mapper.MapError(err)
}

// GetMeeting retrieves a meeting with its participants.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings m WHERE m.id = ?`, id)
	meeting, err := scanMeeting(row)
	if err != nil {
		return persistence.Meeting{}, r.mapper.MapError(err)
	}

	participants, err := r.loadParticipants(ctx, []string{meeting.ID})
	if err != nil {
		return persistence.Meeting{}, err
	}
	meeting.Participants = participants[meeting.ID]
	return meeting, nil
}

// DeleteMeeting removes a meeting; participants cascade.
func (r *MeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListMeetings returns meetings overlapping [From, To) ordered by start time. UserID
// restricts the result to meetings the user organizes or attends.
func (r *MeetingRepository) ListMeetings(ctx context.Context, filter persistence.MeetingFilter) ([]persistence.Meeting, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		conditions = append(conditions,
			"(m.organizer_id = ? OR m.id IN (SELECT meeting_id FROM meeting_participants WHERE user_id = ?))")
		args = append(args, filter.UserID, filter.UserID)
	}
	if filter.From != nil {
		conditions = append(conditions, "m.end_time > ?")
		args = append(args, toMillis(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "m.start_time < ?")
		args = append(args, toMillis(*filter.To))
	}
	if !filter.IncludeCancelled {
		conditions = append(conditions, "m.status <> 'cancelled'")
	}

	query := `SELECT ` + meetingColumns + ` FROM meetings m`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY m.start_time ASC, m.id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	meetings := make([]persistence.Meeting, 0)
	ids := make([]string, 0)
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		meetings = append(meetings, meeting)
		ids = append(ids, meeting.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	participants, err := r.loadParticipants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range meetings {
		meetings[i].Participants = participants[meetings[i].ID]
	}
	return meetings, nil
}

// UpdateParticipantResponse records an invitee's response.
func (r *MeetingRepository) UpdateParticipantResponse(ctx context.Context, participant persistence.MeetingParticipant) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE meeting_participants SET response = ?, responded_at = ? WHERE meeting_id = ? AND user_id = ?`,
		participant.Response,
		nullMillis(participant.RespondedAt),
		participant.MeetingID,
		participant.UserID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

func (r *MeetingRepository) loadParticipants(ctx context.Context, meetingIDs []string) (map[string][]persistence.MeetingParticipant, error) {
	participants := make(map[string][]persistence.MeetingParticipant, len(meetingIDs))
	if len(meetingIDs) == 0 {
		return participants, nil
	}

	query := `SELECT meeting_id, user_id, response, responded_at FROM meeting_participants WHERE meeting_id IN (` +
		placeholders(len(meetingIDs)) + `) ORDER BY user_id ASC`
	rows, err := r.helper.Query(ctx, query, stringArgs(meetingIDs)...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p           persistence.MeetingParticipant
			respondedAt sql.NullInt64
		)
		if err := rows.Scan(&p.MeetingID, &p.UserID, &p.Response, &respondedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		p.RespondedAt = timePtr(respondedAt)
		participants[p.MeetingID] = append(participants[p.MeetingID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return participants, nil
}

// insertParticipants inserts participants, skipping blanks and duplicates.
func insertParticipants(ctx context.Context, tx *sql.Tx, meetingID string, participants []persistence.MeetingParticipant) error {
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		userID := strings.TrimSpace(p.UserID)
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		response := p.Response
		if response == "" {
			response = "pending"
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meeting_participants (meeting_id, user_id, response, responded_at) VALUES (?, ?, ?, ?)`,
			meetingID, userID, response, nullMillis(p.RespondedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanMeeting(row rowScanner) (persistence.Meeting, error) {
	var (
		meeting              persistence.Meeting
		start, end           int64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&meeting.ID,
		&meeting.OrganizerID,
		&meeting.Title,
		&meeting.Description,
		&meeting.Location,
		&meeting.MeetingURL,
		&start,
		&end,
		&meeting.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Meeting{}, err
	}
	meeting.StartTime = fromMillis(start)
	meeting.EndTime = fromMillis(end)
	meeting.CreatedAt = fromMillis(createdAt)
	meeting.UpdatedAt = fromMillis(updatedAt)
	return meeting, nil
}
