package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/hrms/internal/persistence"
)

// DefaultMaxUploadBytes caps a single upload when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// ErrUploadTooLarge is returned when an upload exceeds the configured size.
var ErrUploadTooLarge = NewRequestError(KindBadRequest, "file is too large")

// UploadFile is the raw file handed over by the transport layer.
type UploadFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// UploadService stores uploaded files on disk and guards access to them.
type UploadService struct {
	uploads     persistence.UploadRepository
	chat        persistence.ChatRepository
	dir         string
	maxBytes    int64
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUploadService constructs an UploadService writing into dir.
func NewUploadService(uploads persistence.UploadRepository, chat persistence.ChatRepository, dir string, maxBytes int64, idGenerator func() string, now func() time.Time) *UploadService {
	return NewUploadServiceWithLogger(uploads, chat, dir, maxBytes, idGenerator, now, nil)
}

// NewUploadServiceWithLogger constructs an UploadService with a specified logger.
func NewUploadServiceWithLogger(uploads persistence.UploadRepository, chat persistence.ChatRepository, dir string, maxBytes int64, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UploadService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadService{
		uploads:     uploads,
		chat:        chat,
		dir:         dir,
		maxBytes:    maxBytes,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *UploadService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UploadService", operation, attrs...)
}

// MaxBytes reports the per-file size limit.
func (s *UploadService) MaxBytes() int64 {
	if s == nil {
		return DefaultMaxUploadBytes
	}
	return s.maxBytes
}

// Store writes the file under a generated name and records its metadata.
func (s *UploadService) Store(ctx context.Context, principal Principal, file UploadFile) (result Upload, err error) {
	if s == nil {
		err = fmt.Errorf("UploadService is nil")
		return
	}
	name := sanitizeFileName(file.Name)
	logger := s.loggerWith(ctx, "Store", "user_id", principal.UserID, "file_name", name)
	defer func() { logOutcome(ctx, logger, err, "file uploaded", "upload_id", result.ID, "size", result.Size) }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	if file.Body == nil || name == "" {
		err = badRequest("file is required")
		return
	}

	if err = os.MkdirAll(s.dir, 0o750); err != nil {
		err = fmt.Errorf("create upload dir: %w", err)
		return
	}
	storedName := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.dir, storedName)

	var size int64
	if size, err = writeLimited(path, file.Body, s.maxBytes); err != nil {
		return
	}

	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	record := persistence.Upload{
		ID:           s.idGenerator(),
		UserID:       principal.UserID,
		OriginalName: name,
		StoredName:   storedName,
		ContentType:  contentType,
		Size:         size,
		CreatedAt:    s.now(),
	}
	if err = s.uploads.CreateUpload(ctx, record); err != nil {
		_ = os.Remove(path)
		err = mapStoreError(err, "upload")
		return
	}
	result = uploadFromRecord(record)
	return
}

// Open returns the metadata and content of an upload. Owners, administrators and both
// sides of a chat message carrying the file may read it.
func (s *UploadService) Open(ctx context.Context, principal Principal, id string) (Upload, io.ReadSeekCloser, error) {
	if s == nil {
		return Upload{}, nil, fmt.Errorf("UploadService is nil")
	}
	if err := requireAuthenticated(principal); err != nil {
		return Upload{}, nil, err
	}
	record, err := s.uploads.GetUpload(ctx, id)
	if err != nil {
		return Upload{}, nil, mapStoreError(err, "upload")
	}
	if record.UserID != principal.UserID && !principal.IsAdmin() {
		shared, err := s.chat.HasAttachment(ctx, principal.UserID, record.ID)
		if err != nil {
			return Upload{}, nil, err
		}
		if !shared {
			return Upload{}, nil, forbidden("you do not have access to this file")
		}
	}

	f, err := os.Open(filepath.Join(s.dir, filepath.Base(record.StoredName)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Upload{}, nil, notFound("upload not found")
		}
		return Upload{}, nil, fmt.Errorf("open upload: %w", err)
	}
	return uploadFromRecord(record), f, nil
}

// writeLimited copies at most limit bytes into path, removing the file when the body is
// larger.
func writeLimited(path string, body io.Reader, limit int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(body, limit+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload file: %w", err)
	case n > limit:
		_ = os.Remove(path)
		return 0, ErrUploadTooLarge
	case closeErr != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("close upload file: %w", closeErr)
	}
	return n, nil
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	if r := []rune(name); len(r) > 255 {
		name = string(r[:255])
	}
	return name
}
