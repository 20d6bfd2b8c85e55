package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/offerforge/offerforge/pkg/api/response"
	"github.com/offerforge/offerforge/pkg/logger"
)

// Recovery turns a handler panic into a 500 error document. The panic value
// is logged but never sent to the client. If the handler had already
// started the response nothing more is written. http.ErrAbortHandler is
// re-raised so the server drops the connection.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrap(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				log.ErrorContext(r.Context(), "handler panic",
					"panic", rec,
					"method", r.Method,
					"route", routePattern(r),
					"request_id", requestID,
					"response_started", rw.wroteHeader,
					"stack", string(debug.Stack()),
				)
				if rw.wroteHeader {
					return
				}
				response.Error(rw, http.StatusInternalServerError, response.ErrCodeInternalServer,
					"internal server error", requestID)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
