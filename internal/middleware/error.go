package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
)

const RequestIDHeader = "X-Request-ID"

// errorCodeRecorder is implemented by response writers that want to know
// which error code a handler answered with.
type errorCodeRecorder interface {
	recordErrorCode(code string)
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes an ErrorResponse.
// Errors without a kind are reported as internal and their cause is not
// exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.FromError(err)
	if rec, ok := w.(errorCodeRecorder); ok {
		rec.recordErrorCode(appErr.ErrorCode)
	}

	resp := apperrors.NewErrorResponse(appErr, RequestID(r.Context()))
	WriteJSON(w, appErr.StatusCode, resp)
}

// RequestIDMiddleware tags every request with an ID, reusing the caller's
// X-Request-ID when it is a sane length.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the ID assigned by RequestIDMiddleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(logger.RequestIDKey).(string)
	return id
}

// Recovery turns a panicking handler into a 500 response.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.WithContext(r.Context()).Errorw("Handler panicked",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
					)
					WriteError(w, r, apperrors.NewInternalError("internal server error", nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
