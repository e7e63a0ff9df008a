package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/hrms/internal/persistence"
)

var (
	userCounter    uint64
	entryCounter   uint64
	leaveCounter   uint64
	meetingCounter uint64
)

// referenceTime is Monday 2025-01-06 09:00 in Tokyo.
var referenceTime = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic account record.
type UserFixture struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Department   string
	Position     string
	BaseSalary   float64
	Active       bool
	CreatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic active employee with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		Name:         fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		Role:         "employee",
		Department:   "Engineering",
		Position:     "Engineer",
		BaseSalary:   300000,
		Active:       true,
		CreatedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithAdminRole marks the fixture as an administrator.
func WithAdminRole() UserOption {
	return func(f *UserFixture) {
		f.Role = "admin"
	}
}

// WithUserDepartment overrides the department.
func WithUserDepartment(department string) UserOption {
	return func(f *UserFixture) {
		f.Department = department
	}
}

// Inactive marks the account as deactivated.
func Inactive() UserOption {
	return func(f *UserFixture) {
		f.Active = false
	}
}

// Record returns the fixture as a persistence.User.
func (f UserFixture) Record() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		Name:         f.Name,
		PasswordHash: f.PasswordHash,
		Role:         f.Role,
		Department:   f.Department,
		Position:     f.Position,
		HireDate:     "2024-04-01",
		BaseSalary:   f.BaseSalary,
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// -------------------------- Time entry fixtures --------------------------

// NewActiveEntry returns an open time entry for userID clocked in at timeIn.
func NewActiveEntry(userID string, timeIn time.Time) persistence.TimeEntry {
	idx := atomic.AddUint64(&entryCounter, 1)
	return persistence.TimeEntry{
		ID:        fmt.Sprintf("entry-%03d", idx),
		UserID:    userID,
		TimeIn:    timeIn,
		Status:    "active",
		CreatedAt: timeIn,
		UpdatedAt: timeIn,
	}
}

// NewClosedEntry returns a finished time entry lasting d.
func NewClosedEntry(userID string, timeIn time.Time, d time.Duration, status string) persistence.TimeEntry {
	entry := NewActiveEntry(userID, timeIn)
	out := timeIn.Add(d)
	hours := float64(d.Milliseconds()) / float64(time.Hour.Milliseconds())
	entry.TimeOut = &out
	entry.TotalHours = &hours
	entry.Status = status
	entry.UpdatedAt = out
	return entry
}

// ----------------------------- Leave fixtures ----------------------------

// NewLeaveFixture returns a pending annual leave request over the given inclusive dates.
func NewLeaveFixture(userID, startDate, endDate string, days int) persistence.LeaveRequest {
	idx := atomic.AddUint64(&leaveCounter, 1)
	return persistence.LeaveRequest{
		ID:        fmt.Sprintf("leave-%03d", idx),
		UserID:    userID,
		LeaveType: "annual",
		StartDate: startDate,
		EndDate:   endDate,
		Days:      days,
		Reason:    "family trip",
		Status:    "pending",
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// ---------------------------- Meeting fixtures ---------------------------

// NewMeetingFixture returns a scheduled meeting organized by organizerID.
func NewMeetingFixture(organizerID string, start time.Time, d time.Duration, participants ...string) persistence.Meeting {
	idx := atomic.AddUint64(&meetingCounter, 1)
	meeting := persistence.Meeting{
		ID:          fmt.Sprintf("meeting-%03d", idx),
		OrganizerID: organizerID,
		Title:       fmt.Sprintf("Meeting %03d", idx),
		Location:    "Room A",
		StartTime:   start,
		EndTime:     start.Add(d),
		Status:      "scheduled",
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, userID := range participants {
		meeting.Participants = append(meeting.Participants, persistence.MeetingParticipant{
			MeetingID: meeting.ID,
			UserID:    userID,
			Response:  "pending",
		})
	}
	return meeting
}
