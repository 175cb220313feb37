package middleware

import (
	"mime"
	"net/http"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
)

// ContentTypeJSON rejects request bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBody(r) {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				appErr := apperrors.NewValidationError("Content-Type must be application/json", nil)
				appErr.StatusCode = http.StatusUnsupportedMediaType
				WriteError(w, r, appErr)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize caps request bodies at size bytes. Declared lengths over the
// cap are refused up front; undeclared ones fail when the handler reads
// past the cap.
func MaxBodySize(size int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > size {
				appErr := apperrors.NewValidationError("request body too large", nil)
				appErr.StatusCode = http.StatusRequestEntityTooLarge
				WriteError(w, r, appErr)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, size)
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(r *http.Request) bool {
	if r.ContentLength == 0 {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
