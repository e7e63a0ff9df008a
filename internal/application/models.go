package application

import (
	"encoding/json"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// Roles understood by the authorization checks.
const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID    string
	Role      string
	SessionID string
}

// IsAdmin reports whether the principal carries the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Authenticated reports whether the principal identifies a user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func requireAuthenticated(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func requireAdmin(p Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return forbidden("administrator role required")
	}
	return nil
}

// User is the full account view returned to administrators and to the user themself.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	Department       string    `json:"department"`
	Position         string    `json:"position"`
	Phone            string    `json:"phone"`
	HireDate         string    `json:"hireDate"`
	BaseSalary       float64   `json:"baseSalary"`
	Active           bool      `json:"active"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DirectoryEntry is the reduced employee view visible to every employee.
type DirectoryEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

func userFromRecord(u persistence.User) User {
	return User{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		Department:       u.Department,
		Position:         u.Position,
		Phone:            u.Phone,
		HireDate:         u.HireDate,
		BaseSalary:       u.BaseSalary,
		Active:           u.Active,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func directoryEntryFromRecord(u persistence.User) DirectoryEntry {
	return DirectoryEntry{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Department: u.Department,
		Position:   u.Position,
	}
}

// TimeEntry is a clock-in/clock-out record with its breaks.
type TimeEntry struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	TimeIn     time.Time  `json:"timeIn"`
	TimeOut    *time.Time `json:"timeOut,omitempty"`
	TotalHours *float64   `json:"totalHours,omitempty"`
	Status     string     `json:"status"`
	Notes      string     `json:"notes"`
	Breaks     []BreakLog `json:"breaks,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// BreakLog is a break taken during a time entry.
type BreakLog struct {
	ID              string     `json:"id"`
	TimeEntryID     string     `json:"timeEntryId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
}

func timeEntryFromRecord(e persistence.TimeEntry) TimeEntry {
	return TimeEntry{
		ID:         e.ID,
		UserID:     e.UserID,
		TimeIn:     e.TimeIn,
		TimeOut:    e.TimeOut,
		TotalHours: e.TotalHours,
		Status:     e.Status,
		Notes:      e.Notes,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func breakFromRecord(b persistence.BreakLog) BreakLog {
	return BreakLog{
		ID:              b.ID,
		TimeEntryID:     b.TimeEntryID,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		DurationMinutes: b.DurationMinutes,
	}
}

// LeaveRequest is an employee's time off request.
type LeaveRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	LeaveType  string     `json:"leaveType"`
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate"`
	Days       int        `json:"days"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewerID *string    `json:"reviewerId,omitempty"`
	ReviewNote string     `json:"reviewNote"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func leaveFromRecord(l persistence.LeaveRequest) LeaveRequest {
	return LeaveRequest{
		ID:         l.ID,
		UserID:     l.UserID,
		LeaveType:  l.LeaveType,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
		Days:       l.Days,
		Reason:     l.Reason,
		Status:     l.Status,
		ReviewerID: l.ReviewerID,
		ReviewNote: l.ReviewNote,
		ReviewedAt: l.ReviewedAt,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

// FormSubmission is a generic request form.
type FormSubmission struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	FormType   string          `json:"formType"`
	Title      string          `json:"title"`
	Data       json.RawMessage `json:"data"`
	Status     string          `json:"status"`
	ReviewerID *string         `json:"reviewerId,omitempty"`
	ReviewNote string          `json:"reviewNote"`
	ReviewedAt *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func formFromRecord(f persistence.FormSubmission) FormSubmission {
	data := json.RawMessage(f.Data)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return FormSubmission{
		ID:         f.ID,
		UserID:     f.UserID,
		FormType:   f.FormType,
		Title:      f.Title,
		Data:       data,
		Status:     f.Status,
		ReviewerID: f.ReviewerID,
		ReviewNote: f.ReviewNote,
		ReviewedAt: f.ReviewedAt,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// ChatMessage is a direct message between two users.
type ChatMessage struct {
	ID           string     `json:"id"`
	SenderID     string     `json:"senderId"`
	RecipientID  string     `json:"recipientId"`
	Body         string     `json:"body"`
	AttachmentID *string    `json:"attachmentId,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func messageFromRecord(m persistence.ChatMessage) ChatMessage {
	return ChatMessage{
		ID:           m.ID,
		SenderID:     m.SenderID,
		RecipientID:  m.RecipientID,
		Body:         m.Body,
		AttachmentID: m.AttachmentID,
		ReadAt:       m.ReadAt,
		CreatedAt:    m.CreatedAt,
	}
}

// Conversation summarizes the latest exchange with one partner.
type Conversation struct {
	Partner     DirectoryEntry `json:"partner"`
	LastMessage ChatMessage    `json:"lastMessage"`
	UnreadCount int            `json:"unreadCount"`
}

// Project is a unit of work employees can be assigned to.
type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	StartDate   *string         `json:"startDate,omitempty"`
	EndDate     *string         `json:"endDate,omitempty"`
	OwnerID     string          `json:"ownerId"`
	Members     []ProjectMember `json:"members"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProjectMember links a user to a project.
type ProjectMember struct {
	UserID  string    `json:"userId"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"addedAt"`
}

func projectFromRecord(p persistence.Project) Project {
	members := make([]ProjectMember, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, ProjectMember{UserID: m.UserID, Role: m.Role, AddedAt: m.AddedAt})
	}
	return Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		OwnerID:     p.OwnerID,
		Members:     members,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Notification is a per-user message created by system events.
type Notification struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func notificationFromRecord(n persistence.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// Announcement is an organization-wide message.
type Announcement struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func announcementFromRecord(a persistence.Announcement) Announcement {
	return Announcement{
		ID:        a.ID,
		AuthorID:  a.AuthorID,
		Title:     a.Title,
		Content:   a.Content,
		Priority:  a.Priority,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// PayrollRecord is a monthly payroll snapshot.
type PayrollRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Period      string    `json:"period"`
	HoursWorked float64   `json:"hoursWorked"`
	DaysPresent int       `json:"daysPresent"`
	LeaveDays   int       `json:"leaveDays"`
	BaseSalary  float64   `json:"baseSalary"`
	Allowances  float64   `json:"allowances"`
	Deductions  float64   `json:"deductions"`
	NetPay      float64   `json:"netPay"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func payrollFromRecord(r persistence.PayrollRecord) PayrollRecord {
	return PayrollRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		Period:      r.Period,
		HoursWorked: r.HoursWorked,
		DaysPresent: r.DaysPresent,
		LeaveDays:   r.LeaveDays,
		BaseSalary:  r.BaseSalary,
		Allowances:  r.Allowances,
		Deductions:  r.Deductions,
		NetPay:      r.NetPay,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Meeting is a scheduled meeting with one organizer.
type Meeting struct {
	ID           string        `json:"id"`
	OrganizerID  string        `json:"organizerId"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Location     string        `json:"location"`
	MeetingURL   string        `json:"meetingUrl"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	Status       string        `json:"status"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Participant tracks one invitee's response.
type Participant struct {
	UserID      string     `json:"userId"`
	Response    string     `json:"response"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

func meetingFromRecord(m persistence.Meeting) Meeting {
	participants := make([]Participant, 0, len(m.Participants))
	for _, p := range m.Participants {
		participants = append(participants, Participant{UserID: p.UserID, Response: p.Response, RespondedAt: p.RespondedAt})
	}
	return Meeting{
		ID:           m.ID,
		OrganizerID:  m.OrganizerID,
		Title:        m.Title,
		Description:  m.Description,
		Location:     m.Location,
		MeetingURL:   m.MeetingURL,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Status:       m.Status,
		Participants: participants,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ConflictWarning describes an overlap surfaced alongside a meeting write.
type ConflictWarning struct {
	MeetingID     string    `json:"meetingId"`
	Type          string    `json:"type"`
	ParticipantID string    `json:"participantId,omitempty"`
	Location      string    `json:"location,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// CalendarEvent is a personal calendar entry.
type CalendarEvent struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	AllDay          bool       `json:"allDay"`
	Recurrence      string     `json:"recurrence"`
	RecurrenceDays  []int      `json:"recurrenceDays"`
	RecurrenceUntil *time.Time `json:"recurrenceUntil,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func calendarEventFromRecord(e persistence.CalendarEvent) CalendarEvent {
	days := make([]int, 0, len(e.RecurrenceDays))
	for _, d := range e.RecurrenceDays {
		days = append(days, int(d))
	}
	return CalendarEvent{
		ID:              e.ID,
		UserID:          e.UserID,
		Title:           e.Title,
		Description:     e.Description,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		AllDay:          e.AllDay,
		Recurrence:      e.Recurrence,
		RecurrenceDays:  days,
		RecurrenceUntil: e.RecurrenceUntil,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// CalendarItem is one entry of the merged calendar view.
type CalendarItem struct {
	Kind     string    `json:"kind"`
	SourceID string    `json:"sourceId"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay"`
}

// Upload is metadata of a stored file.
type Upload struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
	URL          string    `json:"url"`
}

func uploadFromRecord(u persistence.Upload) Upload {
	return Upload{
		ID:           u.ID,
		UserID:       u.UserID,
		OriginalName: u.OriginalName,
		ContentType:  u.ContentType,
		Size:         u.Size,
		CreatedAt:    u.CreatedAt,
		URL:          "/uploads/" + u.ID,
	}
}
