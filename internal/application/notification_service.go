package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

const (
	defaultNotificationLimit = 50

	NotificationLeaveResolved  = "leave_resolved"
	NotificationFormResolved   = "form_resolved"
	NotificationChatMessage    = "chat_message"
	NotificationProjectMember  = "project_member"
	NotificationMeetingInvite  = "meeting_invite"
	NotificationMeetingUpdate  = "meeting_updated"
	NotificationMeetingCancel  = "meeting_cancelled"
	NotificationAnnouncement   = "announcement"
	NotificationPayrollRelease = "payroll_finalized"
)

// ListNotificationsInput narrows the caller's notification list.
type ListNotificationsInput struct {
	UnreadOnly bool `json:"unreadOnly"`
	Limit      int  `json:"limit" validate:"omitempty,min=1,max=200"`
}

// NotificationService stores per-user notifications and serves the caller's inbox.
type NotificationService struct {
	notifications persistence.NotificationRepository
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(notifications persistence.NotificationRepository, idGenerator func() string, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(notifications, idGenerator, now, nil)
}

// NewNotificationServiceWithLogger constructs a NotificationService with a specified logger.
func NewNotificationServiceWithLogger(notifications persistence.NotificationRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *NotificationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications: notifications,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// Notify stores a notification. Failures are logged and never surface to the caller.
func (s *NotificationService) Notify(ctx context.Context, n NotificationInput) {
	if s == nil || s.notifications == nil || strings.TrimSpace(n.UserID) == "" {
		return
	}
	record := persistence.Notification{
		ID:        s.idGenerator(),
		UserID:    n.UserID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		CreatedAt: s.now(),
	}
	if err := s.notifications.CreateNotification(ctx, record); err != nil {
		s.loggerWith(ctx, "Notify", "user_id", n.UserID, "kind", n.Kind).
			WarnContext(ctx, "notification dropped", "error", err)
	}
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, principal Principal, input ListNotificationsInput) ([]Notification, error) {
	if s == nil {
		return nil, fmt.Errorf("NotificationService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = defaultNotificationLimit
	}

	records, err := s.notifications.ListNotifications(ctx, principal.UserID, input.UnreadOnly, limit)
	if err != nil {
		return nil, err
	}
	result := make([]Notification, 0, len(records))
	for _, r := range records {
		result = append(result, notificationFromRecord(r))
	}
	return result, nil
}

// UnreadCount counts the caller's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return 0, err
	}
	return s.notifications.CountUnreadNotifications(ctx, principal.UserID)
}

// MarkRead marks one of the caller's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	logger := s.loggerWith(ctx, "MarkRead", "user_id", principal.UserID, "notification_id", id)
	defer func() { logOutcome(ctx, logger, err, "notification marked read") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	err = mapStoreError(s.notifications.MarkNotificationRead(ctx, principal.UserID, id, s.now()), "notification")
	return
}

// MarkAllRead marks every unread notification of the caller read.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) (updated int64, err error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	logger := s.loggerWith(ctx, "MarkAllRead", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "notifications marked read", "updated", updated) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	updated, err = s.notifications.MarkAllNotificationsRead(ctx, principal.UserID, s.now())
	return
}

// Delete removes one of the caller's notifications.
func (s *NotificationService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "notification_id", id)
	defer func() { logOutcome(ctx, logger, err, "notification deleted") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	err = mapStoreError(s.notifications.DeleteNotification(ctx, principal.UserID, id), "notification")
	return
}
