package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/hrms/internal/application"
)

var errRouteNotFound = application.NewRequestError(application.KindNotFound, "リソースが見つかりません。")

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Registry *Registry
	Sessions SessionValidator
	Uploads  UploadStore
	Limiter  *LoginLimiter
	Cookies  CookieConfig
	Metrics  *Metrics
	Health   Pinger
	Logger   *slog.Logger
}

// NewRouter assembles the HTTP surface: procedure calls, the WebSocket endpoint, file
// uploads, health and metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLoginLimiter(0, 0)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(cfg.Metrics.Middleware)
	r.Use(ResolveSession(cfg.Sessions, logger))

	rpc := NewRPCHandler(cfg.Registry, limiter, cfg.Cookies, cfg.Metrics, logger)
	r.Get("/rpc/ws", NewSocketHandler(rpc, logger).ServeHTTP)
	r.Get("/rpc/{procedure}", rpc.ServeHTTP)
	r.Post("/rpc/{procedure}", rpc.ServeHTTP)

	if cfg.Uploads != nil {
		uploads := NewUploadHandler(cfg.Uploads, logger)
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(logger))
			r.Post("/upload", uploads.Upload)
			r.Get("/uploads/{id}", uploads.Download)
		})
	}

	r.Get("/healthz", healthHandler(cfg.Health, newResponder(logger)))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	responder := newResponder(logger)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responder.writeError(r.Context(), w, errRouteNotFound)
	})
	return r
}

func healthHandler(pinger Pinger, responder responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				handlerLogger(r.Context(), nil, "Health", "Ping").ErrorContext(r.Context(), "database unreachable", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
