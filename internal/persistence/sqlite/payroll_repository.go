package sqlite

import (
	"context"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

const payrollColumns = `id, user_id, period, hours_worked, days_present, leave_days, base_salary,
	allowances, deductions, net_pay, status, created_at, updated_at`

// PayrollRepository implements persistence.PayrollRepository using SQLite.
type PayrollRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewPayrollRepository creates a new SQLite payroll repository.
func NewPayrollRepository(pool *ConnectionPool) *PayrollRepository {
	return &PayrollRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreatePayroll inserts a snapshot. A second snapshot for the same user and period is
// persistence.ErrDuplicate.
func (r *PayrollRepository) CreatePayroll(ctx context.Context, record persistence.PayrollRecord) error {
	if record.ID == "" || record.UserID == "" || record.Period == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `INSERT INTO payroll_records (`+payrollColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Period,
		record.HoursWorked,
		record.DaysPresent,
		record.LeaveDays,
		record.BaseSalary,
		record.Allowances,
		record.Deductions,
		record.NetPay,
		record.Status,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetPayroll retrieves a snapshot by ID.
func (r *PayrollRepository) GetPayroll(ctx context.Context, id string) (persistence.PayrollRecord, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+payrollColumns+` FROM payroll_records WHERE id = ?`, id)
	record, err := scanPayroll(row)
	if err != nil {
		return persistence.PayrollRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// UpdatePayroll overwrites the adjustable amounts and status of a snapshot while its stored
// status still equals fromStatus, returning persistence.ErrNotFound otherwise.
func (r *PayrollRepository) UpdatePayroll(ctx context.Context, record persistence.PayrollRecord, fromStatus string) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE payroll_records
		SET allowances = ?, deductions = ?, net_pay = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		record.Allowances,
		record.Deductions,
		record.NetPay,
		record.Status,
		toMillis(record.UpdatedAt),
		record.ID,
		fromStatus,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListPayroll returns snapshots filtered by the non-empty arguments, newest period first.
func (r *PayrollRepository) ListPayroll(ctx context.Context, period, userID, status string) ([]persistence.PayrollRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if period != "" {
		conditions = append(conditions, "period = ?")
		args = append(args, period)
	}
	if userID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, userID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}

	query := `SELECT ` + payrollColumns + ` FROM payroll_records`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY period DESC, user_id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	records := make([]persistence.PayrollRecord, 0)
	for rows.Next() {
		record, err := scanPayroll(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

func scanPayroll(row rowScanner) (persistence.PayrollRecord, error) {
	var (
		record               persistence.PayrollRecord
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Period,
		&record.HoursWorked,
		&record.DaysPresent,
		&record.LeaveDays,
		&record.BaseSalary,
		&record.Allowances,
		&record.Deductions,
		&record.NetPay,
		&record.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.PayrollRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
