package httpapi

import (
	"log/slog"
	"net/http"
)

// NewRouter assembles the operator channel. Only GET routes exist; the
// router has nowhere to send a mutating verb.
func NewRouter(handler *Handler, authToken string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Healthz)
	registerOperatorRoutes(mux, handler, authToken)

	return RequestTracing(RequestLogging(logger, recoverPanic(logger, mux)))
}

func registerOperatorRoutes(mux *http.ServeMux, handler *Handler, authToken string) {
	guarded := func(h http.HandlerFunc) http.Handler {
		return RequireToken(authToken, h)
	}

	mux.Handle("GET /v1/status", guarded(handler.GetStatus))
	mux.Handle("GET /v1/quota", guarded(handler.GetQuota))
	mux.Handle("GET /v1/coverage", guarded(handler.ListCoverage))
	mux.Handle("GET /v1/backfill", guarded(handler.ListBackfill))
	mux.Handle("GET /v1/errors/recent", guarded(handler.ListRecentErrors))
}

func recoverPanic(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
