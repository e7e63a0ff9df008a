package persistence

import (
	"context"
	"time"
)

// UserFilter narrows user listings. Zero values disable a criterion.
type UserFilter struct {
	Department string
	ActiveOnly bool
	Search     string
}

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CountUsers(ctx context.Context, activeOnly bool) (int, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error)
}

// TimeEntryFilter narrows time entry listings.
type TimeEntryFilter struct {
	UserID     string
	From       *time.Time
	To         *time.Time
	ClosedOnly bool
}

// TimeEntryRepository persists time entries and their break logs.
type TimeEntryRepository interface {
	// CreateActiveEntry inserts an entry without time_out. It returns ErrDuplicate when the
	// user already has an active entry.
	CreateActiveEntry(ctx context.Context, entry TimeEntry) error
	GetActiveEntry(ctx context.Context, userID string) (TimeEntry, error)
	GetEntry(ctx context.Context, id string) (TimeEntry, error)
	// CloseEntry sets time_out on an entry that is still open and ends its open break.
	// It returns ErrNotFound when the entry is already closed.
	CloseEntry(ctx context.Context, entry TimeEntry) error
	UpdateEntry(ctx context.Context, entry TimeEntry) error
	ListEntries(ctx context.Context, filter TimeEntryFilter) ([]TimeEntry, error)
	CountActiveEntries(ctx context.Context) (int, error)

	// StartBreak inserts an open break for an active entry. It returns ErrDuplicate when
	// a break is already open and ErrNotFound when the entry is no longer active.
	StartBreak(ctx context.Context, breakLog BreakLog) error
	GetOpenBreak(ctx context.Context, timeEntryID string) (BreakLog, error)
	// EndBreak closes a break that is still open, returning ErrNotFound otherwise.
	EndBreak(ctx context.Context, breakLog BreakLog) error
	ListBreaks(ctx context.Context, timeEntryIDs []string) ([]BreakLog, error)
}

// LeaveFilter narrows leave request listings.
type LeaveFilter struct {
	UserID   string
	Statuses []string
	From     string
	To       string
}

// LeaveRepository persists leave requests.
type LeaveRepository interface {
	CreateLeave(ctx context.Context, leave LeaveRequest) error
	GetLeave(ctx context.Context, id string) (LeaveRequest, error)
	// UpdateLeaveStatus applies a transition only when the stored status equals fromStatus.
	UpdateLeaveStatus(ctx context.Context, leave LeaveRequest, fromStatus string) error
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]LeaveRequest, error)
	CountLeaves(ctx context.Context, status string) (int, error)
}

// FormFilter narrows form submission listings.
type FormFilter struct {
	UserID   string
	Status   string
	FormType string
}

// FormRepository persists form submissions.
type FormRepository interface {
	CreateForm(ctx context.Context, form FormSubmission) error
	GetForm(ctx context.Context, id string) (FormSubmission, error)
	UpdateFormStatus(ctx context.Context, form FormSubmission, fromStatus string) error
	DeleteForm(ctx context.Context, id string, requiredStatus string) error
	ListForms(ctx context.Context, filter FormFilter) ([]FormSubmission, error)
	CountForms(ctx context.Context, status string) (int, error)
}

// ChatRepository persists direct messages.
type ChatRepository interface {
	CreateMessage(ctx context.Context, message ChatMessage) error
	ListConversation(ctx context.Context, userID, partnerID string, before *time.Time, limit int) ([]ChatMessage, error)
	ListConversations(ctx context.Context, userID string) ([]ChatConversation, error)
	MarkConversationRead(ctx context.Context, userID, partnerID string, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	HasAttachment(ctx context.Context, userID, uploadID string) (bool, error)
}

// ProjectRepository persists projects and memberships.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project Project) error
	UpdateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, memberID string) ([]Project, error)
	AddMember(ctx context.Context, member ProjectMember) error
	RemoveMember(ctx context.Context, projectID, userID string) error
}

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string, readAt time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// AnnouncementRepository persists announcements and their read receipts.
type AnnouncementRepository interface {
	CreateAnnouncement(ctx context.Context, announcement Announcement) error
	UpdateAnnouncement(ctx context.Context, announcement Announcement) error
	GetAnnouncement(ctx context.Context, id string) (Announcement, error)
	// DeleteAnnouncement removes the announcement together with its read records.
	DeleteAnnouncement(ctx context.Context, id string) error
	ListAnnouncements(ctx context.Context) ([]Announcement, error)
	MarkAnnouncementRead(ctx context.Context, read AnnouncementRead) error
	ListAnnouncementReads(ctx context.Context, userID string) ([]AnnouncementRead, error)
	CountAnnouncementReads(ctx context.Context, announcementID string) (int, error)
}

// PayrollRepository persists payroll snapshots.
type PayrollRepository interface {
	CreatePayroll(ctx context.Context, record PayrollRecord) error
	GetPayroll(ctx context.Context, id string) (PayrollRecord, error)
	// UpdatePayroll applies the change only when the stored status equals fromStatus.
	UpdatePayroll(ctx context.Context, record PayrollRecord, fromStatus string) error
	ListPayroll(ctx context.Context, period, userID, status string) ([]PayrollRecord, error)
}

// MeetingFilter narrows meeting listings.
type MeetingFilter struct {
	UserID           string
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
}

// MeetingRepository persists meetings and participant responses.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) error
	UpdateMeeting(ctx context.Context, meeting Meeting) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
	ListMeetings(ctx context.Context, filter MeetingFilter) ([]Meeting, error)
	UpdateParticipantResponse(ctx context.Context, participant MeetingParticipant) error
}

// CalendarRepository persists personal calendar events.
type CalendarRepository interface {
	CreateEvent(ctx context.Context, event CalendarEvent) error
	UpdateEvent(ctx context.Context, event CalendarEvent) error
	GetEvent(ctx context.Context, id string) (CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, userID string, from, to time.Time) ([]CalendarEvent, error)
}

// UploadRepository persists upload metadata.
type UploadRepository interface {
	CreateUpload(ctx context.Context, upload Upload) error
	GetUpload(ctx context.Context, id string) (Upload, error)
}
