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

// Leave request states and types.
const (
	LeaveStatusPending   = "pending"
	LeaveStatusApproved  = "approved"
	LeaveStatusRejected  = "rejected"
	LeaveStatusCancelled = "cancelled"

	LeaveTypeAnnual = "annual"

	DefaultAnnualLeaveDays = 20
)

// LeaveInput describes a new leave request.
type LeaveInput struct {
	LeaveType string `json:"leaveType" validate:"required,oneof=annual sick personal unpaid"`
	StartDate string `json:"startDate" validate:"required,date"`
	EndDate   string `json:"endDate" validate:"required,date"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// ListLeavesInput filters the administrator leave list.
type ListLeavesInput struct {
	Status string `json:"status" validate:"omitempty,oneof=pending approved rejected cancelled"`
	UserID string `json:"userId"`
}

// ResolveInput approves or rejects a pending request.
type ResolveInput struct {
	ID       string `json:"id" validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Note     string `json:"note" validate:"max=1000"`
}

// LeaveBalance summarizes annual leave for the current year.
type LeaveBalance struct {
	Year      int `json:"year"`
	Allowance int `json:"allowance"`
	Used      int `json:"used"`
	Pending   int `json:"pending"`
	Remaining int `json:"remaining"`
}

// LeaveService handles leave requests and their review.
type LeaveService struct {
	leaves          persistence.LeaveRepository
	notifier        Notifier
	location        *time.Location
	annualAllowance int
	idGenerator     func() string
	now             func() time.Time
	logger          *slog.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(leaves persistence.LeaveRepository, notifier Notifier, location *time.Location, annualAllowance int, idGenerator func() string, now func() time.Time) *LeaveService {
	return NewLeaveServiceWithLogger(leaves, notifier, location, annualAllowance, idGenerator, now, nil)
}

// NewLeaveServiceWithLogger constructs a LeaveService with a specified logger.
func NewLeaveServiceWithLogger(leaves persistence.LeaveRepository, notifier Notifier, location *time.Location, annualAllowance int, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LeaveService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if annualAllowance <= 0 {
		annualAllowance = DefaultAnnualLeaveDays
	}
	return &LeaveService{
		leaves:          leaves,
		notifier:        notifierOrNoop(notifier),
		location:        locationOrDefault(location),
		annualAllowance: annualAllowance,
		idGenerator:     idGenerator,
		now:             now,
		logger:          defaultLogger(logger),
	}
}

func (s *LeaveService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LeaveService", operation, attrs...)
}

// Request files a leave request for the caller. Overlap with the caller's pending or
// approved requests is a conflict.
func (s *LeaveService) Request(ctx context.Context, principal Principal, input LeaveInput) (result LeaveRequest, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Request", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "leave requested", "leave_id", result.ID, "days", result.Days) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	input.LeaveType = strings.ToLower(strings.TrimSpace(input.LeaveType))
	vErr := validateInput(input)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	start, _ := parseDate(input.StartDate, s.location)
	end, _ := parseDate(input.EndDate, s.location)
	if end.Before(start) {
		vErr.add("endDate", "endDate must not be before startDate")
		err = vErr
		return
	}
	days := countWorkingDays(start, end)
	if days == 0 {
		vErr.add("endDate", "the requested range contains no working days")
		err = vErr
		return
	}

	var overlapping []persistence.LeaveRequest
	overlapping, err = s.leaves.ListLeaves(ctx, persistence.LeaveFilter{
		UserID:   principal.UserID,
		Statuses: []string{LeaveStatusPending, LeaveStatusApproved},
		From:     input.StartDate,
		To:       input.EndDate,
	})
	if err != nil {
		return
	}
	if len(overlapping) > 0 {
		err = conflict("the request overlaps leave %s to %s", overlapping[0].StartDate, overlapping[0].EndDate)
		return
	}

	if input.LeaveType == LeaveTypeAnnual {
		var balance LeaveBalance
		if balance, err = s.balanceFor(ctx, principal.UserID); err != nil {
			return
		}
		if days > balance.Remaining-balance.Pending {
			err = badRequest("insufficient annual leave: %d days requested, %d available", days, balance.Remaining-balance.Pending)
			return
		}
	}

	now := s.now()
	record := persistence.LeaveRequest{
		ID:        s.idGenerator(),
		UserID:    principal.UserID,
		LeaveType: input.LeaveType,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Days:      days,
		Reason:    strings.TrimSpace(input.Reason),
		Status:    LeaveStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.leaves.CreateLeave(ctx, record); err != nil {
		err = mapStoreError(err, "leave request")
		return
	}
	result = leaveFromRecord(record)
	return
}

// Cancel withdraws one of the caller's pending requests.
func (s *LeaveService) Cancel(ctx context.Context, principal Principal, id string) (result LeaveRequest, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Cancel", "user_id", principal.UserID, "leave_id", id)
	defer func() { logOutcome(ctx, logger, err, "leave cancelled") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}

	var record persistence.LeaveRequest
	if record, err = s.leaves.GetLeave(ctx, id); err != nil {
		err = mapStoreError(err, "leave request")
		return
	}
	if record.UserID != principal.UserID {
		err = forbidden("only the requester may cancel a leave request")
		return
	}
	if record.Status != LeaveStatusPending {
		err = badRequest("only pending requests can be cancelled")
		return
	}

	record.Status = LeaveStatusCancelled
	record.UpdatedAt = s.now()
	if err = s.leaves.UpdateLeaveStatus(ctx, record, LeaveStatusPending); err != nil {
		err = s.transitionError(err)
		return
	}
	result = leaveFromRecord(record)
	return
}

// Mine lists the caller's requests, optionally filtered by status.
func (s *LeaveService) Mine(ctx context.Context, principal Principal, input ListLeavesInput) ([]LeaveRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("LeaveService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return nil, err
	}
	input.UserID = principal.UserID
	return s.list(ctx, input)
}

// List returns requests of every user for administrators.
func (s *LeaveService) List(ctx context.Context, principal Principal, input ListLeavesInput) ([]LeaveRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("LeaveService is nil")
	}
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	return s.list(ctx, input)
}

func (s *LeaveService) list(ctx context.Context, input ListLeavesInput) ([]LeaveRequest, error) {
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	filter := persistence.LeaveFilter{UserID: strings.TrimSpace(input.UserID)}
	if input.Status != "" {
		filter.Statuses = []string{input.Status}
	}
	records, err := s.leaves.ListLeaves(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]LeaveRequest, 0, len(records))
	for _, r := range records {
		result = append(result, leaveFromRecord(r))
	}
	return result, nil
}

// Resolve approves or rejects a pending request and notifies its owner.
func (s *LeaveService) Resolve(ctx context.Context, principal Principal, input ResolveInput) (result LeaveRequest, err error) {
	if s == nil {
		err = fmt.Errorf("LeaveService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Resolve", "user_id", principal.UserID, "leave_id", input.ID, "decision", input.Decision)
	defer func() { logOutcome(ctx, logger, err, "leave resolved") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var record persistence.LeaveRequest
	if record, err = s.leaves.GetLeave(ctx, input.ID); err != nil {
		err = mapStoreError(err, "leave request")
		return
	}
	if record.Status != LeaveStatusPending {
		err = badRequest("only pending requests can be resolved")
		return
	}

	now := s.now()
	reviewer := principal.UserID
	record.Status = input.Decision
	record.ReviewerID = &reviewer
	record.ReviewNote = strings.TrimSpace(input.Note)
	record.ReviewedAt = &now
	record.UpdatedAt = now
	if err = s.leaves.UpdateLeaveStatus(ctx, record, LeaveStatusPending); err != nil {
		err = s.transitionError(err)
		return
	}

	s.notifier.Notify(ctx, NotificationInput{
		UserID:  record.UserID,
		Kind:    NotificationLeaveResolved,
		Title:   leaveDecisionTitle(input.Decision),
		Message: fmt.Sprintf("%s 〜 %s の休暇申請", record.StartDate, record.EndDate),
		Link:    "/leaves/" + record.ID,
	})

	result = leaveFromRecord(record)
	return
}

// Balance reports annual leave usage for the current year. Administrators may query any
// user.
func (s *LeaveService) Balance(ctx context.Context, principal Principal, userID string) (LeaveBalance, error) {
	if s == nil {
		return LeaveBalance{}, fmt.Errorf("LeaveService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return LeaveBalance{}, err
	}
	userID = strings.TrimSpace(userID)
	switch {
	case userID == "":
		userID = principal.UserID
	case userID != principal.UserID && !principal.IsAdmin():
		return LeaveBalance{}, forbidden("employees may only view their own balance")
	}
	return s.balanceFor(ctx, userID)
}

func (s *LeaveService) balanceFor(ctx context.Context, userID string) (LeaveBalance, error) {
	year := s.now().In(s.location).Year()
	records, err := s.leaves.ListLeaves(ctx, persistence.LeaveFilter{
		UserID:   userID,
		Statuses: []string{LeaveStatusPending, LeaveStatusApproved},
		From:     fmt.Sprintf("%04d-01-01", year),
		To:       fmt.Sprintf("%04d-12-31", year),
	})
	if err != nil {
		return LeaveBalance{}, err
	}

	balance := LeaveBalance{Year: year, Allowance: s.annualAllowance}
	prefix := fmt.Sprintf("%04d-", year)
	for _, r := range records {
		if r.LeaveType != LeaveTypeAnnual || !strings.HasPrefix(r.StartDate, prefix) {
			continue
		}
		switch r.Status {
		case LeaveStatusApproved:
			balance.Used += r.Days
		case LeaveStatusPending:
			balance.Pending += r.Days
		}
	}
	balance.Remaining = balance.Allowance - balance.Used
	if balance.Remaining < 0 {
		balance.Remaining = 0
	}
	return balance, nil
}

// transitionError reports a lost conditional update as a stale state.
func (s *LeaveService) transitionError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return badRequest("the request is no longer pending")
	}
	return mapStoreError(err, "leave request")
}

func leaveDecisionTitle(decision string) string {
	if decision == LeaveStatusApproved {
		return "休暇申請が承認されました"
	}
	return "休暇申請が却下されました"
}
