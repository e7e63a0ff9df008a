package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/hrms/internal/application"
)

// multipart overhead allowed on top of the file size limit
const uploadFormSlack = 64 << 10

// UploadStore stores and serves uploaded files.
type UploadStore interface {
	MaxBytes() int64
	Store(ctx context.Context, principal application.Principal, file application.UploadFile) (application.Upload, error)
	Open(ctx context.Context, principal application.Principal, id string) (application.Upload, io.ReadSeekCloser, error)
}

// UploadHandler exposes multipart upload and download endpoints.
type UploadHandler struct {
	uploads   UploadStore
	responder responder
	logger    *slog.Logger
}

// NewUploadHandler constructs an UploadHandler.
func NewUploadHandler(uploads UploadStore, logger *slog.Logger) *UploadHandler {
	base := defaultLogger(logger)
	return &UploadHandler{uploads: uploads, responder: newResponder(base), logger: base}
}

// Upload handles POST /upload with a multipart "file" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "UploadHandler", "Upload")
	principal, _ := PrincipalFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+uploadFormSlack)
	reader, err := r.MultipartReader()
	if err != nil {
		logger.WarnContext(ctx, "not a multipart request", "error", err)
		h.responder.writeError(ctx, w, errBadRequestBody)
		return
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.responder.writeError(ctx, w, application.NewRequestError(application.KindBadRequest, "ファイルを指定してください。"))
				return
			}
			h.responder.writeError(ctx, w, uploadReadError(err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		upload, err := h.uploads.Store(ctx, principal, application.UploadFile{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			h.responder.writeError(ctx, w, uploadReadError(err))
			return
		}
		h.responder.writeResult(ctx, w, upload)
		return
	}
}

// Download handles GET /uploads/{id}.
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	upload, content, err := h.uploads.Open(ctx, principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.writeError(ctx, w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", upload.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": upload.OriginalName}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, upload.OriginalName, upload.CreatedAt, content)
}

func uploadReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return application.ErrUploadTooLarge
	}
	return err
}
