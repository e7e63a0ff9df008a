package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// Payroll snapshot states.
const (
	PayrollStatusDraft     = "draft"
	PayrollStatusFinalized = "finalized"
)

// GeneratePayrollInput selects the month to snapshot.
type GeneratePayrollInput struct {
	Period string `json:"period" validate:"required,period"`
}

// ListPayrollInput filters payroll snapshots.
type ListPayrollInput struct {
	Period string `json:"period" validate:"omitempty,period"`
	UserID string `json:"userId"`
	Status string `json:"status" validate:"omitempty,oneof=draft finalized"`
}

// AdjustPayrollInput overwrites the manual amounts of a draft snapshot.
type AdjustPayrollInput struct {
	ID         string  `json:"id" validate:"required"`
	Allowances float64 `json:"allowances" validate:"gte=0"`
	Deductions float64 `json:"deductions" validate:"gte=0"`
}

// FinalizePayrollInput finalizes the listed drafts, or every draft of Period when IDs is
// empty.
type FinalizePayrollInput struct {
	Period string   `json:"period" validate:"omitempty,period"`
	IDs    []string `json:"ids"`
}

// PayrollSkip reports an employee whose snapshot was not generated.
type PayrollSkip struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// PayrollGeneration summarizes a generation run.
type PayrollGeneration struct {
	Period  string          `json:"period"`
	Created []PayrollRecord `json:"created"`
	Skipped []PayrollSkip   `json:"skipped"`
}

// PayrollService builds and finalizes monthly payroll snapshots.
type PayrollService struct {
	payroll     persistence.PayrollRepository
	users       persistence.UserRepository
	entries     persistence.TimeEntryRepository
	leaves      persistence.LeaveRepository
	notifier    Notifier
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// PayrollSources groups the repositories payroll generation reads from.
type PayrollSources struct {
	Users   persistence.UserRepository
	Entries persistence.TimeEntryRepository
	Leaves  persistence.LeaveRepository
}

// NewPayrollService constructs a PayrollService.
func NewPayrollService(payroll persistence.PayrollRepository, sources PayrollSources, notifier Notifier, location *time.Location, idGenerator func() string, now func() time.Time) *PayrollService {
	return NewPayrollServiceWithLogger(payroll, sources, notifier, location, idGenerator, now, nil)
}

// NewPayrollServiceWithLogger constructs a PayrollService with a specified logger.
func NewPayrollServiceWithLogger(payroll persistence.PayrollRepository, sources PayrollSources, notifier Notifier, location *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PayrollService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PayrollService{
		payroll:     payroll,
		users:       sources.Users,
		entries:     sources.Entries,
		leaves:      sources.Leaves,
		notifier:    notifierOrNoop(notifier),
		location:    locationOrDefault(location),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *PayrollService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PayrollService", operation, attrs...)
}

// Generate creates one draft snapshot per active employee for the period. Employees that
// already have a snapshot are skipped and reported.
func (s *PayrollService) Generate(ctx context.Context, principal Principal, input GeneratePayrollInput) (result PayrollGeneration, err error) {
	if s == nil {
		err = fmt.Errorf("PayrollService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Generate", "user_id", principal.UserID, "period", input.Period)
	defer func() {
		logOutcome(ctx, logger, err, "payroll generated", "created", len(result.Created), "skipped", len(result.Skipped))
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var monthStart time.Time
	if monthStart, err = time.ParseInLocation(periodLayout, input.Period, s.location); err != nil {
		err = badRequest("period is invalid")
		return
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	var users []persistence.User
	if users, err = s.users.ListUsers(ctx, persistence.UserFilter{ActiveOnly: true}); err != nil {
		return
	}

	result = PayrollGeneration{Period: input.Period, Created: []PayrollRecord{}, Skipped: []PayrollSkip{}}
	for _, user := range users {
		var record persistence.PayrollRecord
		if record, err = s.snapshot(ctx, user, input.Period, monthStart, monthEnd); err != nil {
			return
		}
		if err = s.payroll.CreatePayroll(ctx, record); err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				err = nil
				result.Skipped = append(result.Skipped, PayrollSkip{
					UserID: user.ID,
					Reason: conflict("payroll for %s already exists", input.Period).Error(),
				})
				continue
			}
			err = mapStoreError(err, "payroll")
			return
		}
		result.Created = append(result.Created, payrollFromRecord(record))
	}
	return
}

func (s *PayrollService) snapshot(ctx context.Context, user persistence.User, period string, monthStart, monthEnd time.Time) (persistence.PayrollRecord, error) {
	entries, err := s.entries.ListEntries(ctx, persistence.TimeEntryFilter{
		UserID:     user.ID,
		From:       &monthStart,
		To:         &monthEnd,
		ClosedOnly: true,
	})
	if err != nil {
		return persistence.PayrollRecord{}, fmt.Errorf("list entries of %s: %w", user.ID, err)
	}

	var hours float64
	days := make(map[string]struct{})
	for _, e := range entries {
		if h, ok := entryHours(e); ok {
			hours += h
		}
		days[formatDate(e.TimeIn, s.location)] = struct{}{}
	}

	leaves, err := s.leaves.ListLeaves(ctx, persistence.LeaveFilter{
		UserID:   user.ID,
		Statuses: []string{LeaveStatusApproved},
		From:     formatDate(monthStart, s.location),
		To:       formatDate(monthEnd.AddDate(0, 0, -1), s.location),
	})
	if err != nil {
		return persistence.PayrollRecord{}, fmt.Errorf("list leaves of %s: %w", user.ID, err)
	}

	var leaveDays, unpaidDays int
	for _, l := range leaves {
		start, errStart := parseDate(l.StartDate, s.location)
		end, errEnd := parseDate(l.EndDate, s.location)
		if errStart != nil || errEnd != nil {
			continue
		}
		if start.Before(monthStart) {
			start = monthStart
		}
		if last := monthEnd.AddDate(0, 0, -1); end.After(last) {
			end = last
		}
		n := countWorkingDays(start, end)
		leaveDays += n
		if l.LeaveType == "unpaid" {
			unpaidDays += n
		}
	}

	var deductions float64
	if workingDays := countWorkingDays(monthStart, monthEnd.AddDate(0, 0, -1)); workingDays > 0 && unpaidDays > 0 {
		deductions = math.Round(user.BaseSalary / float64(workingDays) * float64(unpaidDays))
	}

	now := s.now()
	return persistence.PayrollRecord{
		ID:          s.idGenerator(),
		UserID:      user.ID,
		Period:      period,
		HoursWorked: round2(hours),
		DaysPresent: len(days),
		LeaveDays:   leaveDays,
		BaseSalary:  user.BaseSalary,
		Deductions:  deductions,
		NetPay:      netPay(user.BaseSalary, 0, deductions),
		Status:      PayrollStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// List returns snapshots matching the filter.
func (s *PayrollService) List(ctx context.Context, principal Principal, input ListPayrollInput) ([]PayrollRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("PayrollService is nil")
	}
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if err := validateInput(input).errOrNil(); err != nil {
		return nil, err
	}
	records, err := s.payroll.ListPayroll(ctx, input.Period, input.UserID, input.Status)
	if err != nil {
		return nil, err
	}
	result := make([]PayrollRecord, 0, len(records))
	for _, r := range records {
		result = append(result, payrollFromRecord(r))
	}
	return result, nil
}

// Adjust overwrites allowances and deductions of a draft and recomputes net pay.
func (s *PayrollService) Adjust(ctx context.Context, principal Principal, input AdjustPayrollInput) (result PayrollRecord, err error) {
	if s == nil {
		err = fmt.Errorf("PayrollService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Adjust", "user_id", principal.UserID, "payroll_id", input.ID)
	defer func() { logOutcome(ctx, logger, err, "payroll adjusted") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var record persistence.PayrollRecord
	if record, err = s.payroll.GetPayroll(ctx, input.ID); err != nil {
		err = mapStoreError(err, "payroll")
		return
	}
	if record.Status != PayrollStatusDraft {
		err = badRequest("only draft payroll can be adjusted")
		return
	}
	record.Allowances = input.Allowances
	record.Deductions = input.Deductions
	record.NetPay = netPay(record.BaseSalary, record.Allowances, record.Deductions)
	record.UpdatedAt = s.now()
	if err = s.payroll.UpdatePayroll(ctx, record, PayrollStatusDraft); err != nil {
		if isStoreNotFound(err) {
			err = badRequest("only draft payroll can be adjusted")
			return
		}
		err = mapStoreError(err, "payroll")
		return
	}
	result = payrollFromRecord(record)
	return
}

// Finalize releases drafts to employees and notifies them. Records that are already
// finalized are left untouched.
func (s *PayrollService) Finalize(ctx context.Context, principal Principal, input FinalizePayrollInput) (result []PayrollRecord, err error) {
	if s == nil {
		err = fmt.Errorf("PayrollService is nil")
		return
	}
	logger := s.loggerWith(ctx, "Finalize", "user_id", principal.UserID, "period", input.Period, "ids", len(input.IDs))
	defer func() { logOutcome(ctx, logger, err, "payroll finalized", "finalized", len(result)) }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	ids := uniqueStrings(input.IDs)
	if len(ids) == 0 && input.Period == "" {
		vErr.add("period", "period or ids is required")
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var drafts []persistence.PayrollRecord
	if len(ids) > 0 {
		for _, id := range ids {
			var record persistence.PayrollRecord
			if record, err = s.payroll.GetPayroll(ctx, id); err != nil {
				err = mapStoreError(err, "payroll")
				return
			}
			if record.Status == PayrollStatusDraft {
				drafts = append(drafts, record)
			}
		}
	} else if drafts, err = s.payroll.ListPayroll(ctx, input.Period, "", PayrollStatusDraft); err != nil {
		return
	}

	now := s.now()
	result = make([]PayrollRecord, 0, len(drafts))
	for _, record := range drafts {
		record.Status = PayrollStatusFinalized
		record.UpdatedAt = now
		if err = s.payroll.UpdatePayroll(ctx, record, PayrollStatusDraft); err != nil {
			if isStoreNotFound(err) {
				// finalized concurrently
				err = nil
				continue
			}
			err = mapStoreError(err, "payroll")
			return
		}
		s.notifier.Notify(ctx, NotificationInput{
			UserID:  record.UserID,
			Kind:    NotificationPayrollRelease,
			Title:   "給与明細が発行されました",
			Message: record.Period,
			Link:    "/payslips",
		})
		result = append(result, payrollFromRecord(record))
	}
	return
}

func netPay(base, allowances, deductions float64) float64 {
	return round2(base + allowances - deductions)
}
