package persistence

import "time"

// User represents an employee or administrator account.
type User struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	Role             string
	Department       string
	Position         string
	Phone            string
	HireDate         string
	BaseSalary       float64
	Active           bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// TimeEntry is a single clock-in/clock-out record.
type TimeEntry struct {
	ID         string
	UserID     string
	TimeIn     time.Time
	TimeOut    *time.Time
	TotalHours *float64
	Status     string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BreakLog is a break taken during an active time entry.
type BreakLog struct {
	ID              string
	TimeEntryID     string
	UserID          string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *int
	CreatedAt       time.Time
}

// LeaveRequest is an employee's request for time off.
type LeaveRequest struct {
	ID         string
	UserID     string
	LeaveType  string
	StartDate  string
	EndDate    string
	Days       int
	Reason     string
	Status     string
	ReviewerID *string
	ReviewNote string
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FormSubmission is a generic request form (expenses, equipment, overtime...).
type FormSubmission struct {
	ID         string
	UserID     string
	FormType   string
	Title      string
	Data       string
	Status     string
	ReviewerID *string
	ReviewNote string
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChatMessage is a direct message between two users.
type ChatMessage struct {
	ID           string
	SenderID     string
	RecipientID  string
	Body         string
	AttachmentID *string
	ReadAt       *time.Time
	CreatedAt    time.Time
}

// ChatConversation summarizes the latest exchange with a single partner.
type ChatConversation struct {
	PartnerID   string
	LastMessage ChatMessage
	UnreadCount int
}

// Project is a unit of work employees can be assigned to.
type Project struct {
	ID          string
	Name        string
	Description string
	Status      string
	StartDate   *string
	EndDate     *string
	OwnerID     string
	Members     []ProjectMember
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectMember links a user to a project.
type ProjectMember struct {
	ProjectID string
	UserID    string
	Role      string
	AddedAt   time.Time
}

// Notification is a per-user message created by system events.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Message   string
	Link      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Announcement is an organization-wide message published by an administrator.
type Announcement struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	Priority  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnnouncementRead records that a user has read an announcement.
type AnnouncementRead struct {
	AnnouncementID string
	UserID         string
	ReadAt         time.Time
}

// PayrollRecord is a payroll snapshot for one user and one month.
type PayrollRecord struct {
	ID          string
	UserID      string
	Period      string
	HoursWorked float64
	DaysPresent int
	LeaveDays   int
	BaseSalary  float64
	Allowances  float64
	Deductions  float64
	NetPay      float64
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Meeting is a scheduled meeting with one organizer.
type Meeting struct {
	ID           string
	OrganizerID  string
	Title        string
	Description  string
	Location     string
	MeetingURL   string
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	Participants []MeetingParticipant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MeetingParticipant tracks the response of one invitee.
type MeetingParticipant struct {
	MeetingID   string
	UserID      string
	Response    string
	RespondedAt *time.Time
}

// CalendarEvent is a personal calendar entry, optionally recurring.
type CalendarEvent struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	AllDay          bool
	Recurrence      string
	RecurrenceDays  []time.Weekday
	RecurrenceUntil *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Upload is metadata for a file stored on local disk.
type Upload struct {
	ID           string
	UserID       string
	OriginalName string
	StoredName   string
	ContentType  string
	Size         int64
	CreatedAt    time.Time
}
