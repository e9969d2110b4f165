package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
	"github.com/apistarter/apistarter/internal/ratelimit"
	"github.com/apistarter/apistarter/internal/server/respond"
)

// RateLimitMessage is returned to clients over budget.
const RateLimitMessage = "Rate limit exceeded. Please try again later."

// RateLimit admits requests through limiter, keyed by client address. The
// address is whatever RemoteAddr holds once the trusted-proxy stage has run.
func RateLimit(limiter *ratelimit.Limiter, recorder *metrics.Recorder, logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			decision := limiter.Consume(key)

			if decision.Limit > 0 {
				w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				w.Header().Set("RateLimit-Reset", strconv.Itoa(decision.ResetSeconds()))
			}

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := decision.RetryAfterSeconds()
			recorder.RateLimited()
			logger.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("retry_after", retryAfter),
				zap.String("requestID", GetRequestID(r.Context())))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = respond.JSON(w, http.StatusTooManyRequests, respond.RateLimitBody{
				Error:      http.StatusText(http.StatusTooManyRequests),
				Message:    RateLimitMessage,
				RetryAfter: retryAfter,
			})
		})
	}
}

// ClientKey returns the client address of r without its port.
func ClientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
