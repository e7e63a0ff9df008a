package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/hrms/internal/persistence"
)

const formColumns = `id, user_id, form_type, title, data, status, reviewer_id, review_note,
	reviewed_at, created_at, updated_at`

// FormRepository implements persistence.FormRepository using SQLite.
type FormRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewFormRepository creates a new SQLite form repository.
func NewFormRepository(pool *ConnectionPool) *FormRepository {
	return &FormRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateForm inserts a form submission. Data must already be a JSON document.
func (r *FormRepository) CreateForm(ctx context.Context, form persistence.FormSubmission) error {
	if form.ID == "" || form.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	data := form.Data
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	query := `INSERT INTO form_submissions (` + formColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		form.ID,
		form.UserID,
		form.FormType,
		form.Title,
		data,
		form.Status,
		nullString(form.ReviewerID),
		form.ReviewNote,
		nullMillis(form.ReviewedAt),
		toMillis(form.CreatedAt),
		toMillis(form.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetForm retrieves a submission by ID.
func (r *FormRepository) GetForm(ctx context.Context, id string) (persistence.FormSubmission, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+formColumns+` FROM form_submissions WHERE id = ?`, id)
	form, err := scanForm(row)
	if err != nil {
		return persistence.FormSubmission{}, r.mapper.MapError(err)
	}
	return form, nil
}

// UpdateFormStatus writes the review fields while the stored status equals fromStatus.
func (r *FormRepository) UpdateFormStatus(ctx context.Context, form persistence.FormSubmission, fromStatus string) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE form_submissions
		SET status = ?, reviewer_id = ?, review_note = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		form.Status,
		nullString(form.ReviewerID),
		form.ReviewNote,
		nullMillis(form.ReviewedAt),
		toMillis(form.UpdatedAt),
		form.ID,
		fromStatus,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// DeleteForm removes a submission while its status equals requiredStatus.
func (r *FormRepository) DeleteForm(ctx context.Context, id string, requiredStatus string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM form_submissions WHERE id = ? AND status = ?`, id, requiredStatus)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListForms returns submissions matching the filter, newest first.
func (r *FormRepository) ListForms(ctx context.Context, filter persistence.FormFilter) ([]persistence.FormSubmission, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.FormType != "" {
		conditions = append(conditions, "form_type = ?")
		args = append(args, filter.FormType)
	}

	query := `SELECT ` + formColumns + ` FROM form_submissions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	forms := make([]persistence.FormSubmission, 0)
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return forms, nil
}

// CountForms counts submissions with the given status.
func (r *FormRepository) CountForms(ctx context.Context, status string) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM form_submissions WHERE status = ?`, status).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

func scanForm(row rowScanner) (persistence.FormSubmission, error) {
	var (
		form                 persistence.FormSubmission
		reviewerID           sql.NullString
		reviewedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&form.ID,
		&form.UserID,
		&form.FormType,
		&form.Title,
		&form.Data,
		&form.Status,
		&reviewerID,
		&form.ReviewNote,
		&reviewedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.FormSubmission{}, err
	}
	form.ReviewerID = stringPtr(reviewerID)
	form.ReviewedAt = timePtr(reviewedAt)
	form.CreatedAt = fromMillis(createdAt)
	form.UpdatedAt = fromMillis(updatedAt)
	return form, nil
}
