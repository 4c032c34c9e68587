package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jmylchreest/autoclip/internal/observability"
)

// RequestIDHeader is the HTTP header for request ID.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength caps client-supplied IDs before they reach the logs.
const maxRequestIDLength = 64

// RequestID is a middleware that injects a request ID into the context.
// A client-supplied X-Request-ID is reused when it is short enough;
// otherwise a new UUID is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return observability.RequestIDFromContext(ctx)
}
