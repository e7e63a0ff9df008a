package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// Project lifecycle states.
const (
	ProjectStatusPlanning  = "planning"
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"

	defaultMemberRole = "member"
)

// ProjectInput describes a new project.
type ProjectInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Status      string   `json:"status" validate:"omitempty,oneof=planning active on_hold completed"`
	StartDate   string   `json:"startDate" validate:"omitempty,date"`
	EndDate     string   `json:"endDate" validate:"omitempty,date"`
	MemberIDs   []string `json:"memberIds"`
}

// UpdateProjectInput replaces the attributes of a project. Memberships are managed
// separately.
type UpdateProjectInput struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"required,oneof=planning active on_hold completed"`
	StartDate   string `json:"startDate" validate:"omitempty,date"`
	EndDate     string `json:"endDate" validate:"omitempty,date"`
}

// MemberInput adds or removes a project member.
type MemberInput struct {
	ProjectID string `json:"projectId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Role      string `json:"role" validate:"max=50"`
}

// ProjectService manages projects and their memberships.
type ProjectService struct {
	projects    persistence.ProjectRepository
	users       persistence.UserRepository
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewProjectService constructs a ProjectService.
func NewProjectService(projects persistence.ProjectRepository, users persistence.UserRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *ProjectService {
	return NewProjectServiceWithLogger(projects, users, notifier, idGenerator, now, nil)
}

// NewProjectServiceWithLogger constructs a ProjectService with a specified logger.
func NewProjectServiceWithLogger(projects persistence.ProjectRepository, users persistence.UserRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ProjectService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ProjectService{
		projects:    projects,
		users:       users,
		notifier:    notifierOrNoop(notifier),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ProjectService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ProjectService", operation, attrs...)
}

// List returns every project to administrators and the caller's projects otherwise.
func (s *ProjectService) List(ctx context.Context, principal Principal) ([]Project, error) {
	if s == nil {
		return nil, fmt.Errorf("ProjectService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	memberID := principal.UserID
	if principal.IsAdmin() {
		memberID = ""
	}
	records, err := s.projects.ListProjects(ctx, memberID)
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(records))
	for _, r := range records {
		projects = append(projects, projectFromRecord(r))
	}
	return projects, nil
}

// Get returns a project to administrators and its members.
func (s *ProjectService) Get(ctx context.Context, principal Principal, id string) (Project, error) {
	if s == nil {
		return Project{}, fmt.Errorf("ProjectService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return Project{}, err
	}
	record, err := s.projects.GetProject(ctx, id)
	if err != nil {
		return Project{}, mapStoreError(err, "project")
	}
	if !principal.IsAdmin() && !isProjectMember(record, principal.UserID) {
		return Project{}, forbidden("not a member of this project")
	}
	return projectFromRecord(record), nil
}

// Create stores a project owned by the calling administrator.
func (s *ProjectService) Create(ctx context.Context, principal Principal, input ProjectInput) (result Project, err error) {
	if s == nil {
		err = fmt.Errorf("ProjectService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Create", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "project created", "project_id", result.ID) }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	vErr := validateInput(input)
	checkDateOrder(vErr, input.StartDate, input.EndDate)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	memberIDs := uniqueStrings(input.MemberIDs)
	if err = s.requireUsers(ctx, memberIDs); err != nil {
		return
	}

	now := s.now()
	status := input.Status
	if status == "" {
		status = ProjectStatusPlanning
	}
	record := persistence.Project{
		ID:          s.idGenerator(),
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		StartDate:   stringPtrOrNil(input.StartDate),
		EndDate:     stringPtrOrNil(input.EndDate),
		OwnerID:     principal.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, userID := range memberIDs {
		record.Members = append(record.Members, persistence.ProjectMember{
			ProjectID: record.ID,
			UserID:    userID,
			Role:      defaultMemberRole,
			AddedAt:   now,
		})
	}
	if err = s.projects.CreateProject(ctx, record); err != nil {
		err = mapStoreError(err, "project")
		return
	}

	for _, userID := range memberIDs {
		s.notifyMember(ctx, record, userID)
	}
	result = projectFromRecord(record)
	return
}

// Update replaces the attributes of a project.
func (s *ProjectService) Update(ctx context.Context, principal Principal, input UpdateProjectInput) (result Project, err error) {
	if s == nil {
		err = fmt.Errorf("ProjectService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Update", "user_id", principal.UserID, "project_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "project updated") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	vErr := validateInput(input)
	checkDateOrder(vErr, input.StartDate, input.EndDate)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var record persistence.Project
	if record, err = s.projects.GetProject(ctx, input.ID); err != nil {
		err = mapStoreError(err, "project")
		return
	}
	record.Name = input.Name
	record.Description = strings.TrimSpace(input.Description)
	record.Status = input.Status
	record.StartDate = stringPtrOrNil(input.StartDate)
	record.EndDate = stringPtrOrNil(input.EndDate)
	record.UpdatedAt = s.now()
	if err = s.projects.UpdateProject(ctx, record); err != nil {
		err = mapStoreError(err, "project")
		return
	}
	result = projectFromRecord(record)
	return
}

// Delete removes a project with its memberships.
func (s *ProjectService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil {
		return fmt.Errorf("ProjectService is nil")
	}
	logger := s.loggerWith(ctx, "Delete", "user_id", principal.UserID, "project_id", id)
	defer func() { logOutcome(ctx, logger, err, "project deleted") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	err = mapStoreError(s.projects.DeleteProject(ctx, id), "project")
	return
}

// AddMember assigns a user to a project and notifies them.
func (s *ProjectService) AddMember(ctx context.Context, principal Principal, input MemberInput) (result Project, err error) {
	if s == nil {
		err = fmt.Errorf("ProjectService is nil")
		return
	}
	logger := s.loggerWith(ctx, "AddMember", "user_id", principal.UserID, "project_id", input.ProjectID, "member_id", input.UserID)
	defer func() { logOutcome(ctx, logger, err, "project member added") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var record persistence.Project
	if record, err = s.projects.GetProject(ctx, input.ProjectID); err != nil {
		err = mapStoreError(err, "project")
		return
	}
	if err = s.requireUsers(ctx, []string{input.UserID}); err != nil {
		return
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = defaultMemberRole
	}
	member := persistence.ProjectMember{ProjectID: record.ID, UserID: input.UserID, Role: role, AddedAt: s.now()}
	if err = s.projects.AddMember(ctx, member); err != nil {
		err = mapStoreError(err, "project member")
		return
	}

	s.notifyMember(ctx, record, input.UserID)
	record.Members = append(record.Members, member)
	result = projectFromRecord(record)
	return
}

// RemoveMember unassigns a user from a project.
func (s *ProjectService) RemoveMember(ctx context.Context, principal Principal, input MemberInput) (err error) {
	if s == nil {
		return fmt.Errorf("ProjectService is nil")
	}
	logger := s.loggerWith(ctx, "RemoveMember", "user_id", principal.UserID, "project_id", input.ProjectID, "member_id", input.UserID)
	defer func() { logOutcome(ctx, logger, err, "project member removed") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}
	err = mapStoreError(s.projects.RemoveMember(ctx, input.ProjectID, input.UserID), "project member")
	return
}

func (s *ProjectService) requireUsers(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.users.GetUser(ctx, id); err != nil {
			if isStoreNotFound(err) {
				return badRequest("user %s does not exist", id)
			}
			return err
		}
	}
	return nil
}

func (s *ProjectService) notifyMember(ctx context.Context, project persistence.Project, userID string) {
	s.notifier.Notify(ctx, NotificationInput{
		UserID:  userID,
		Kind:    NotificationProjectMember,
		Title:   "プロジェクトに追加されました",
		Message: project.Name,
		Link:    "/projects/" + project.ID,
	})
}

func isProjectMember(project persistence.Project, userID string) bool {
	for _, m := range project.Members {
		if m.UserID == userID {
			return true
		}
	}
	return project.OwnerID == userID
}

// checkDateOrder records an endDate error when both dates parse and end precedes start.
func checkDateOrder(vErr *ValidationError, start, end string) {
	if start == "" || end == "" {
		return
	}
	s, errStart := time.Parse(dateLayout, start)
	e, errEnd := time.Parse(dateLayout, end)
	if errStart != nil || errEnd != nil {
		return
	}
	if e.Before(s) {
		vErr.add("endDate", "endDate must not be before startDate")
	}
}
