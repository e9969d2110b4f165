package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apistarter/apistarter/internal/requestctx"
)

// RequestID header key
const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a correlation ID using the default
// length cap.
func RequestID(next http.Handler) http.Handler {
	return RequestIDLimit(requestctx.DefaultMaxIDLength)(next)
}

// RequestIDLimit tags each request with a correlation ID. A non-empty inbound
// X-Request-ID of at most maxLen bytes is reused verbatim, otherwise a random
// UUID is generated. The ID is echoed on the response and stored on the
// request context.
func RequestIDLimit(maxLen int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return tagger(next, maxLen)
	}
}

func tagger(next http.Handler, maxLen int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !requestctx.Acceptable(requestID, maxLen) {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := requestctx.With(r.Context(), requestctx.RequestContext{
			ID:         requestID,
			ReceivedAt: time.Now(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	return requestctx.ID(ctx)
}
