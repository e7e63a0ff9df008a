package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/hrms/internal/application"
	"github.com/example/hrms/internal/logging"
)

// SessionValidator resolves a session token to the principal it belongs to.
type SessionValidator interface {
	Authenticate(ctx context.Context, token string) (application.Principal, error)
}

// ResolveSession attaches the principal of a valid session token to the request context.
// Requests without a usable token continue anonymously; procedures decide whether that is
// acceptable.
func ResolveSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" || validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := validator.Authenticate(r.Context(), token)
			if err != nil {
				if application.KindOf(err) == application.KindUnauthorized {
					next.ServeHTTP(w, r)
					return
				}
				responder.writeError(r.Context(), w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = logging.With(ctx, "user_id", principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that carry no authenticated principal.
func RequireSession(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.Authenticated() {
				if extractTokenFromRequest(r) == "" {
					responder.writeError(r.Context(), w, errMissingSessionToken)
					return
				}
				responder.writeError(r.Context(), w, application.ErrSessionRevoked)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request-scoped logger and logs the start and end of each
// request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ctx = contextWithClientIP(ctx, clientIP(r))
			ctx = contextWithUserAgent(ctx, r.UserAgent())
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP middleware has already
// replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
