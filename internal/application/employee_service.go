package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// ListEmployeesInput filters the administrator listing. Employees always receive the
// directory of active staff and the filters only narrow it.
type ListEmployeesInput struct {
	Department string `json:"department" validate:"max=100"`
	ActiveOnly bool   `json:"activeOnly"`
	Search     string `json:"search" validate:"max=100"`
}

// CreateEmployeeInput describes a new account with its initial password.
type CreateEmployeeInput struct {
	Email      string  `json:"email" validate:"required,email"`
	Name       string  `json:"name" validate:"required,max=100"`
	Password   string  `json:"password" validate:"required"`
	Role       string  `json:"role" validate:"omitempty,oneof=employee admin"`
	Department string  `json:"department" validate:"max=100"`
	Position   string  `json:"position" validate:"max=100"`
	Phone      string  `json:"phone" validate:"max=30"`
	HireDate   string  `json:"hireDate" validate:"omitempty,date"`
	BaseSalary float64 `json:"baseSalary" validate:"gte=0"`
}

// UpdateEmployeeInput changes the supplied fields of an account. Employees updating
// themselves may only change name and phone.
type UpdateEmployeeInput struct {
	ID         string   `json:"id" validate:"required"`
	Name       *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Phone      *string  `json:"phone" validate:"omitempty,max=30"`
	Email      *string  `json:"email" validate:"omitempty,email"`
	Role       *string  `json:"role" validate:"omitempty,oneof=employee admin"`
	Department *string  `json:"department" validate:"omitempty,max=100"`
	Position   *string  `json:"position" validate:"omitempty,max=100"`
	HireDate   *string  `json:"hireDate" validate:"omitempty,date"`
	BaseSalary *float64 `json:"baseSalary" validate:"omitempty,gte=0"`
	Active     *bool    `json:"active"`
}

func (in UpdateEmployeeInput) touchesAdminFields() bool {
	return in.Email != nil || in.Role != nil || in.Department != nil || in.Position != nil ||
		in.HireDate != nil || in.BaseSalary != nil || in.Active != nil
}

// ResetPasswordInput sets a new password for another account.
type ResetPasswordInput struct {
	UserID      string `json:"userId" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// EmployeeService manages employee records.
type EmployeeService struct {
	users        persistence.UserRepository
	sessions     persistence.SessionRepository
	payroll      persistence.PayrollRepository
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewEmployeeService constructs an EmployeeService.
func NewEmployeeService(users persistence.UserRepository, sessions persistence.SessionRepository, payroll persistence.PayrollRepository, idGenerator func() string, now func() time.Time) *EmployeeService {
	return NewEmployeeServiceWithLogger(users, sessions, payroll, idGenerator, now, nil)
}

// NewEmployeeServiceWithLogger constructs an EmployeeService with a specified logger.
func NewEmployeeServiceWithLogger(users persistence.UserRepository, sessions persistence.SessionRepository, payroll persistence.PayrollRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EmployeeService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EmployeeService{
		users:        users,
		sessions:     sessions,
		payroll:      payroll,
		hashPassword: HashPassword,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *EmployeeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EmployeeService", operation, attrs...)
}

// List returns full account records to administrators.
func (s *EmployeeService) List(ctx context.Context, principal Principal, input ListEmployeesInput) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("EmployeeService is nil")
	}
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	records, err := s.users.ListUsers(ctx, persistence.UserFilter{
		Department: strings.TrimSpace(input.Department),
		ActiveOnly: input.ActiveOnly,
		Search:     input.Search,
	})
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(records))
	for _, r := range records {
		users = append(users, userFromRecord(r))
	}
	return users, nil
}

// Directory returns the reduced view of active staff visible to every employee.
func (s *EmployeeService) Directory(ctx context.Context, principal Principal, input ListEmployeesInput) ([]DirectoryEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("EmployeeService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	records, err := s.users.ListUsers(ctx, persistence.UserFilter{
		Department: strings.TrimSpace(input.Department),
		ActiveOnly: true,
		Search:     input.Search,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]DirectoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, directoryEntryFromRecord(r))
	}
	return entries, nil
}

// Get returns the full record to administrators and to the user themself.
func (s *EmployeeService) Get(ctx context.Context, principal Principal, id string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("EmployeeService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return User{}, err
	}
	if !principal.IsAdmin() && principal.UserID != id {
		return User{}, forbidden("employees may only view their own record")
	}
	record, err := s.users.GetUser(ctx, id)
	if err != nil {
		return User{}, mapStoreError(err, "employee")
	}
	return userFromRecord(record), nil
}

// DirectoryEntry returns the reduced view of an active employee.
func (s *EmployeeService) DirectoryEntry(ctx context.Context, principal Principal, id string) (DirectoryEntry, error) {
	if s == nil {
		return DirectoryEntry{}, fmt.Errorf("EmployeeService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return DirectoryEntry{}, err
	}
	record, err := s.users.GetUser(ctx, id)
	if err != nil {
		return DirectoryEntry{}, mapStoreError(err, "employee")
	}
	if !record.Active {
		return DirectoryEntry{}, notFound("employee not found")
	}
	return directoryEntryFromRecord(record), nil
}

// Profile returns the caller's own record.
func (s *EmployeeService) Profile(ctx context.Context, principal Principal) (User, error) {
	return s.Get(ctx, principal, principal.UserID)
}

// Create registers an account with an initial password.
func (s *EmployeeService) Create(ctx context.Context, principal Principal, input CreateEmployeeInput) (result User, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	logger := s.loggerWith(ctx, "Create", "user_id", principal.UserID, "email", email)
	defer func() { logOutcome(ctx, logger, err, "employee created", "employee_id", result.ID) }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	input.Email = email
	input.Name = strings.TrimSpace(input.Name)
	vErr := validateInput(input)
	if input.Password != "" {
		checkPasswordPolicy("password", input.Password, vErr)
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var hash string
	if hash, err = s.hashPassword(input.Password); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	role := input.Role
	if role == "" {
		role = RoleEmployee
	}
	now := s.now()
	record := persistence.User{
		ID:           s.idGenerator(),
		Email:        email,
		Name:         input.Name,
		PasswordHash: hash,
		Role:         role,
		Department:   strings.TrimSpace(input.Department),
		Position:     strings.TrimSpace(input.Position),
		Phone:        strings.TrimSpace(input.Phone),
		HireDate:     input.HireDate,
		BaseSalary:   input.BaseSalary,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.users.CreateUser(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = conflict("an account with this email already exists")
			return
		}
		err = mapStoreError(err, "employee")
		return
	}
	result = userFromRecord(record)
	return
}

// Update applies the supplied fields. Administrators may change every field; employees
// may change their own name and phone.
func (s *EmployeeService) Update(ctx context.Context, principal Principal, input UpdateEmployeeInput) (result User, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Update", "user_id", principal.UserID, "employee_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "employee updated") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if !principal.IsAdmin() {
		if principal.UserID != input.ID {
			err = forbidden("employees may only update their own record")
			return
		}
		if input.touchesAdminFields() {
			err = forbidden("employees may only change name and phone")
			return
		}
	}
	if input.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*input.Email))
		input.Email = &normalized
	}
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	vErr := validateInput(input)
	if input.Name != nil && *input.Name == "" {
		vErr.add("name", "name is required")
	}
	if principal.UserID == input.ID && input.Active != nil && !*input.Active {
		vErr.add("active", "you cannot deactivate your own account")
	}
	if principal.UserID == input.ID && input.Role != nil && *input.Role != RoleAdmin {
		vErr.add("role", "you cannot remove your own administrator role")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var record persistence.User
	if record, err = s.users.GetUser(ctx, input.ID); err != nil {
		err = mapStoreError(err, "employee")
		return
	}
	wasActive := record.Active
	applyEmployeeUpdate(&record, input)
	record.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = conflict("an account with this email already exists")
			return
		}
		err = mapStoreError(err, "employee")
		return
	}
	if wasActive && !record.Active {
		if err = s.sessions.RevokeUserSessions(ctx, record.ID, record.UpdatedAt); err != nil {
			err = fmt.Errorf("revoke sessions: %w", err)
			return
		}
	}
	result = userFromRecord(record)
	return
}

// Deactivate disables an account and revokes its sessions.
func (s *EmployeeService) Deactivate(ctx context.Context, principal Principal, id string) (result User, err error) {
	if s == nil {
		err = fmt.Errorf("EmployeeService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Deactivate", "user_id", principal.UserID, "employee_id", id)
	defer func() { logOutcome(ctx, logger, err, "employee deactivated") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if id == principal.UserID {
		err = badRequest("you cannot deactivate your own account")
		return
	}

	var record persistence.User
	if record, err = s.users.GetUser(ctx, id); err != nil {
		err = mapStoreError(err, "employee")
		return
	}
	now := s.now()
	if record.Active {
		record.Active = false
		record.UpdatedAt = now
		if err = s.users.UpdateUser(ctx, record); err != nil {
			err = mapStoreError(err, "employee")
			return
		}
	}
	if err = s.sessions.RevokeUserSessions(ctx, id, now); err != nil {
		err = fmt.Errorf("revoke sessions: %w", err)
		return
	}
	result = userFromRecord(record)
	return
}

// ResetPassword sets a new password for an account and revokes its sessions.
func (s *EmployeeService) ResetPassword(ctx context.Context, principal Principal, input ResetPasswordInput) (err error) {
	if s == nil {
		return fmt.Errorf("EmployeeService is nil")
	}
	logger := s.loggerWith(ctx, "ResetPassword", "user_id", principal.UserID, "employee_id", input.UserID)
	defer func() { logOutcome(ctx, logger, err, "password reset") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	if input.NewPassword != "" {
		checkPasswordPolicy("newPassword", input.NewPassword, vErr)
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var record persistence.User
	if record, err = s.users.GetUser(ctx, input.UserID); err != nil {
		err = mapStoreError(err, "employee")
		return
	}
	if record.PasswordHash, err = s.hashPassword(input.NewPassword); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	record.UpdatedAt = s.now()
	if err = s.users.UpdateUser(ctx, record); err != nil {
		err = mapStoreError(err, "employee")
		return
	}
	if err = s.sessions.RevokeUserSessions(ctx, record.ID, record.UpdatedAt); err != nil {
		err = fmt.Errorf("revoke sessions: %w", err)
	}
	return
}

// Payslips lists the caller's finalized payroll records, newest period first.
func (s *EmployeeService) Payslips(ctx context.Context, principal Principal) ([]PayrollRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("EmployeeService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	records, err := s.payroll.ListPayroll(ctx, "", principal.UserID, PayrollStatusFinalized)
	if err != nil {
		return nil, err
	}
	payslips := make([]PayrollRecord, 0, len(records))
	for _, r := range records {
		payslips = append(payslips, payrollFromRecord(r))
	}
	return payslips, nil
}

func applyEmployeeUpdate(record *persistence.User, input UpdateEmployeeInput) {
	if input.Name != nil {
		record.Name = *input.Name
	}
	if input.Phone != nil {
		record.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Email != nil {
		record.Email = *input.Email
	}
	if input.Role != nil {
		record.Role = *input.Role
	}
	if input.Department != nil {
		record.Department = strings.TrimSpace(*input.Department)
	}
	if input.Position != nil {
		record.Position = strings.TrimSpace(*input.Position)
	}
	if input.HireDate != nil {
		record.HireDate = *input.HireDate
	}
	if input.BaseSalary != nil {
		record.BaseSalary = *input.BaseSalary
	}
	if input.Active != nil {
		record.Active = *input.Active
	}
}
