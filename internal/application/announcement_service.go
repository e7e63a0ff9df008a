package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// AnnouncementInput captures administrator provided announcement fields.
type AnnouncementInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required,max=10000"`
	Priority string `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// UpdateAnnouncementInput identifies the announcement to overwrite.
type UpdateAnnouncementInput struct {
	ID       string `json:"id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required,max=10000"`
	Priority string `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// AnnouncementService publishes organization-wide announcements and tracks who read them.
type AnnouncementService struct {
	announcements persistence.AnnouncementRepository
	users         persistence.UserRepository
	notifier      Notifier
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

// NewAnnouncementService constructs an AnnouncementService.
func NewAnnouncementService(announcements persistence.AnnouncementRepository, users persistence.UserRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *AnnouncementService {
	return NewAnnouncementServiceWithLogger(announcements, users, notifier, idGenerator, now, nil)
}

// NewAnnouncementServiceWithLogger constructs an AnnouncementService with a specified logger.
func NewAnnouncementServiceWithLogger(announcements persistence.AnnouncementRepository, users persistence.UserRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AnnouncementService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AnnouncementService{
		announcements: announcements,
		users:         users,
		notifier:      notifierOrNoop(notifier),
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *AnnouncementService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AnnouncementService", operation, attrs...)
}

// List returns every announcement ranked by priority then recency, flagged with whether
// the caller has read it.
func (s *AnnouncementService) List(ctx context.Context, principal Principal) ([]Announcement, error) {
	if s == nil {
		return nil, fmt.Errorf("AnnouncementService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}

	records, err := s.announcements.ListAnnouncements(ctx)
	if err != nil {
		return nil, err
	}
	reads, err := s.announcements.ListAnnouncementReads(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	read := make(map[string]struct{}, len(reads))
	for _, r := range reads {
		read[r.AnnouncementID] = struct{}{}
	}

	result := make([]Announcement, 0, len(records))
	for _, record := range records {
		a := announcementFromRecord(record)
		_, a.Read = read[a.ID]
		result = append(result, a)
	}
	RankAnnouncements(result)
	return result, nil
}

// MarkRead records that the caller read an announcement.
func (s *AnnouncementService) MarkRead(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("AnnouncementService is nil")
	}
	logger := s.loggerWith(ctx, "MarkRead", "user_id", principal.UserID, "announcement_id", id)
	defer func() { logOutcome(ctx, logger, err, "announcement marked read") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if _, err = s.announcements.GetAnnouncement(ctx, id); err != nil {
		err = mapStoreError(err, "announcement")
		return
	}
	err = mapStoreError(s.announcements.MarkAnnouncementRead(ctx, persistence.AnnouncementRead{
		AnnouncementID: id,
		UserID:         principal.UserID,
		ReadAt:         s.now(),
	}), "announcement")
	return
}

// Create publishes an announcement. High priority announcements also notify every active
// user other than the author.
func (s *AnnouncementService) Create(ctx context.Context, principal Principal, input AnnouncementInput) (result Announcement, err error) {
	if s == nil {
		err = fmt.Errorf("AnnouncementService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Create", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "announcement created", "announcement_id", result.ID) }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	input = normalizeAnnouncementInput(input)
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	now := s.now()
	record := persistence.Announcement{
		ID:        s.idGenerator(),
		AuthorID:  principal.UserID,
		Title:     input.Title,
		Content:   input.Content,
		Priority:  input.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.announcements.CreateAnnouncement(ctx, record); err != nil {
		err = mapStoreError(err, "announcement")
		return
	}

	if record.Priority == "high" && s.users != nil {
		s.broadcast(ctx, record)
	}

	result = announcementFromRecord(record)
	return
}

// Update overwrites an announcement's title, content and priority.
func (s *AnnouncementService) Update(ctx context.Context, principal Principal, input UpdateAnnouncementInput) (result Announcement, err error) {
	if s == nil {
		err = fmt.Errorf("AnnouncementService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Update", "user_id", principal.UserID, "announcement_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "announcement updated") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	fields := normalizeAnnouncementInput(AnnouncementInput{Title: input.Title, Content: input.Content, Priority: input.Priority})
	vErr := validateInput(fields)
	if strings.TrimSpace(input.ID) == "" {
		vErr.add("id", "id is required")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var record persistence.Announcement
	if record, err = s.announcements.GetAnnouncement(ctx, input.ID); err != nil {
		err = mapStoreError(err, "announcement")
		return
	}
	record.Title = fields.Title
	record.Content = fields.Content
	record.Priority = fields.Priority
	record.UpdatedAt = s.now()
	if err = s.announcements.UpdateAnnouncement(ctx, record); err != nil {
		err = mapStoreError(err, "announcement")
		return
	}
	result = announcementFromRecord(record)
	return
}

// Delete removes an announcement together with its read records.
func (s *AnnouncementService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("AnnouncementService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "announcement_id", id)
	defer func() { logOutcome(ctx, logger, err, "announcement deleted") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	err = mapStoreError(s.announcements.DeleteAnnouncement(ctx, id), "announcement")
	return
}

func (s *AnnouncementService) broadcast(ctx context.Context, record persistence.Announcement) {
	users, err := s.users.ListUsers(ctx, persistence.UserFilter{ActiveOnly: true})
	if err != nil {
		s.loggerWith(ctx, "broadcast").WarnContext(ctx, "announcement broadcast skipped", "error", err)
		return
	}
	for _, u := range users {
		if u.ID == record.AuthorID {
			continue
		}
		s.notifier.Notify(ctx, NotificationInput{
			UserID:  u.ID,
			Kind:    NotificationAnnouncement,
			Title:   record.Title,
			Message: "重要なお知らせが掲載されました",
			Link:    "/announcements/" + record.ID,
		})
	}
}

func normalizeAnnouncementInput(input AnnouncementInput) AnnouncementInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Content = strings.TrimSpace(input.Content)
	input.Priority = strings.ToLower(strings.TrimSpace(input.Priority))
	if input.Priority == "" {
		input.Priority = "medium"
	}
	return input
}

func priorityRank(priority string) int {
	switch priority {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

// RankAnnouncements orders announcements by priority descending, breaking ties by
// creation time descending. Equal keys keep their input order.
func RankAnnouncements(list []Announcement) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := priorityRank(list[i].Priority), priorityRank(list[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
