package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/hrms/internal/application"
)

const maxRPCBodyBytes = 1 << 20

// RPCHandler serves procedures over plain HTTP.
type RPCHandler struct {
	registry  *Registry
	limiter   *LoginLimiter
	cookies   CookieConfig
	metrics   *Metrics
	responder responder
	logger    *slog.Logger
}

// NewRPCHandler constructs an RPCHandler.
func NewRPCHandler(registry *Registry, limiter *LoginLimiter, cookies CookieConfig, metrics *Metrics, logger *slog.Logger) *RPCHandler {
	base := defaultLogger(logger)
	return &RPCHandler{
		registry:  registry,
		limiter:   limiter,
		cookies:   cookies,
		metrics:   metrics,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *RPCHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "RPCHandler", operation, attrs...)
}

// ServeHTTP handles POST /rpc/{procedure} with a JSON body and GET /rpc/{procedure}?input=
// for query procedures.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "procedure")

	proc, ok := h.registry.Lookup(name)
	if !ok {
		h.metrics.observeCall("unknown", string(application.KindNotFound))
		h.responder.writeError(ctx, w, errUnknownProcedure)
		return
	}

	var input json.RawMessage
	switch r.Method {
	case http.MethodGet:
		if !proc.Query {
			w.Header().Set("Allow", http.MethodPost)
			h.responder.writeJSON(ctx, w, http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{
				Code:    string(application.KindBadRequest),
				Message: "この手続きは POST で呼び出してください。",
			}})
			return
		}
		if raw := r.URL.Query().Get("input"); raw != "" {
			input = json.RawMessage(raw)
		}
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
		if err != nil {
			h.log(ctx, name).WarnContext(ctx, "failed to read request body", "error", err)
			h.responder.writeError(ctx, w, errBadRequestBody)
			return
		}
		input = body
	}

	result, err := h.invoke(ctx, proc, input)
	h.metrics.observeCall(name, string(application.KindOf(err)))
	if err != nil {
		h.responder.writeError(ctx, w, err)
		return
	}

	switch v := result.(type) {
	case application.LoginResult:
		if v.Token != "" && v.ExpiresAt != nil {
			h.cookies.setSession(w, v.Token, *v.ExpiresAt)
		}
	case okResult:
		if name == "auth.logout" {
			h.cookies.clearSession(w)
		}
	}
	h.responder.writeResult(ctx, w, result)
}

// invoke applies the login limiter and runs the procedure as the request's principal.
func (h *RPCHandler) invoke(ctx context.Context, proc Procedure, input json.RawMessage) (any, error) {
	if proc.Limited && !h.limiter.Allow(clientIPFromContext(ctx)) {
		h.log(ctx, proc.Name, "client_ip", clientIPFromContext(ctx)).WarnContext(ctx, "rate limit exceeded")
		return nil, errTooManyRequests
	}
	principal, _ := PrincipalFromContext(ctx)
	return h.registry.Call(ctx, proc.Name, principal, input)
}
