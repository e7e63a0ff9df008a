package sqlite

import (
	"context"

	"github.com/example/hrms/internal/persistence"
)

// UploadRepository implements persistence.UploadRepository using SQLite.
type UploadRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUploadRepository creates a new SQLite upload repository.
func NewUploadRepository(pool *ConnectionPool) *UploadRepository {
	return &UploadRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateUpload records metadata for a stored file.
func (r *UploadRepository) CreateUpload(ctx context.Context, upload persistence.Upload) error {
	if upload.ID == "" || upload.UserID == "" || upload.StoredName == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO uploads (id, user_id, original_name, stored_name, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		upload.ID,
		upload.UserID,
		upload.OriginalName,
		upload.StoredName,
		upload.ContentType,
		upload.Size,
		toMillis(upload.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUpload retrieves upload metadata by ID.
func (r *UploadRepository) GetUpload(ctx context.Context, id string) (persistence.Upload, error) {
	var (
		upload    persistence.Upload
		createdAt int64
	)
	err := r.helper.QueryRow(ctx, `
		SELECT id, user_id, original_name, stored_name, content_type, size, created_at
		FROM uploads WHERE id = ?
	`, id).Scan(
		&upload.ID,
		&upload.UserID,
		&upload.OriginalName,
		&upload.StoredName,
		&upload.ContentType,
		&upload.Size,
		&createdAt,
	)
	if err != nil {
		return persistence.Upload{}, r.mapper.MapError(err)
	}
	upload.CreatedAt = fromMillis(createdAt)
	return upload, nil
}
