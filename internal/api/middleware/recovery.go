package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/sentineleye/internal/api/response"
)

// Recovery turns a handler panic into a 500 response. The request id is
// echoed back so the client can quote it when reporting the failure.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			reqID := chimw.GetReqID(r.Context())
			slog.ErrorContext(r.Context(), "panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			var details any
			if reqID != "" {
				details = map[string]string{"request_id": reqID}
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}
