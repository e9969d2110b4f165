package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/apistarter/apistarter/internal/config"
)

// CORS applies the origin policy. Production restricts origins to the
// configured allow-list; other modes reflect any origin. Credentials are
// allowed in both cases.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	if cfg != nil && cfg.Mode.IsProduction() {
		opts.AllowedOrigins = cfg.CORS.AllowedOrigins
	} else {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool { return true }
	}

	return cors.Handler(opts)
}

// securityHeaders are the hardening headers set on every response.
// Content-Security-Policy and Cross-Origin-Embedder-Policy are not set.
var securityHeaders = [][2]string{
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Origin-Agent-Cluster", "?1"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Download-Options", "noopen"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"X-XSS-Protection", "0"},
}

// SecurityHeaders sets securityHeaders before the handler writes a body.
func SecurityHeaders(next http.Handler) http.Handler {
	h := next
	for i := len(securityHeaders) - 1; i >= 0; i-- {
		h = chimw.SetHeader(securityHeaders[i][0], securityHeaders[i][1])(h)
	}
	return h
}

// Compression gzips/deflates eligible responses.
func Compression(next http.Handler) http.Handler {
	return chimw.Compress(5)(next)
}
