package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/hrms/internal/application"
	"github.com/example/hrms/internal/logging"
)

var (
	errBadRequestBody      = application.NewRequestError(application.KindBadRequest, "無効なリクエスト形式です。")
	errUnknownProcedure    = application.NewRequestError(application.KindNotFound, "指定された手続きは存在しません。")
	errTooManyRequests     = application.NewRequestError(application.KindTooManyRequests, "リクエストが多すぎます。しばらくしてから再度お試しください。")
	errMissingSessionToken = application.NewRequestError(application.KindUnauthorized, "認証トークンを指定してください")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeResult(ctx context.Context, w http.ResponseWriter, result any) {
	r.writeJSON(ctx, w, http.StatusOK, resultEnvelope{Result: result})
}

// writeError renders err in the error envelope with the status of its kind.
func (r responder) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	body := toErrorBody(err)
	status := statusForKind(application.Kind(body.Code))
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, errorEnvelope{Error: body})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, r.logger)
}

type resultEnvelope struct {
	Result any `json:"result"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// toErrorBody classifies err. Caller-facing messages of request errors are kept; other
// errors get the localized default of their kind so internals never leak.
func toErrorBody(err error) errorBody {
	kind := application.KindOf(err)
	if kind == "" {
		kind = application.KindInternal
	}
	body := errorBody{Code: string(kind), Message: localizedKindMessage(kind)}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		body.Message = localizedKindMessage(application.KindBadRequest)
		if len(vErr.FieldErrors) > 0 {
			body.Fields = make(map[string]string, len(vErr.FieldErrors))
			for field, msg := range vErr.FieldErrors {
				body.Fields[field] = msg
			}
		}
		return body
	}

	var reqErr *application.RequestError
	if errors.As(err, &reqErr) {
		if msg := strings.TrimSpace(reqErr.Message); msg != "" {
			body.Message = msg
		}
		return body
	}

	switch {
	case errors.Is(err, application.ErrInvalidCredentials):
		body.Message = "メールアドレスまたはパスワードが正しくありません"
	case errors.Is(err, application.ErrAccountDisabled):
		body.Message = "このアカウントは無効化されています。"
	case errors.Is(err, application.ErrSessionExpired), errors.Is(err, application.ErrSessionRevoked):
		body.Message = "セッションが無効です。再度ログインしてください。"
	case errors.Is(err, application.ErrInvalidTwoFactorCode):
		body.Message = "確認コードが正しくありません。"
	}
	return body
}

func statusForKind(kind application.Kind) int {
	switch kind {
	case application.KindBadRequest:
		return http.StatusBadRequest
	case application.KindUnauthorized:
		return http.StatusUnauthorized
	case application.KindForbidden:
		return http.StatusForbidden
	case application.KindNotFound:
		return http.StatusNotFound
	case application.KindConflict:
		return http.StatusConflict
	case application.KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func localizedKindMessage(kind application.Kind) string {
	switch kind {
	case application.KindBadRequest:
		return "入力内容に誤りがあります。"
	case application.KindUnauthorized:
		return "認証が必要です。"
	case application.KindForbidden:
		return "この操作を実行する権限がありません。"
	case application.KindNotFound:
		return "指定されたリソースが見つかりません。"
	case application.KindConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case application.KindTooManyRequests:
		return "リクエストが多すぎます。しばらくしてから再度お試しください。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}
