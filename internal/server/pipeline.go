package server

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/requestctx"
	servermw "github.com/apistarter/apistarter/internal/server/middleware"
)

// Stage is one named middleware in the request pipeline. Include decides,
// from configuration alone, whether the stage is mounted.
type Stage struct {
	Name        string
	Description string
	Include     func(cfg *config.Config) bool
	Middleware  func(http.Handler) http.Handler
}

// Pipeline is an ordered list of stages; the first stage is outermost.
type Pipeline []Stage

// Always includes a stage in every mode.
func Always(*config.Config) bool { return true }

// OutsideDevelopment includes a stage in every mode except development.
func OutsideDevelopment(cfg *config.Config) bool {
	return cfg != nil && !cfg.Mode.IsDevelopment()
}

// WhenTrustProxy includes a stage when the service sits behind a proxy.
func WhenTrustProxy(cfg *config.Config) bool {
	return cfg != nil && cfg.Server.TrustProxy
}

// Included reports whether s is mounted under cfg.
func (s Stage) Included(cfg *config.Config) bool {
	return s.Include == nil || s.Include(cfg)
}

// Active returns the stages mounted under cfg, in order.
func (p Pipeline) Active(cfg *config.Config) Pipeline {
	active := make(Pipeline, 0, len(p))
	for _, s := range p {
		if s.Included(cfg) {
			active = append(active, s)
		}
	}
	return active
}

// Names returns the stage names in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

// Middlewares returns the middleware of every stage in order.
func (p Pipeline) Middlewares() []func(http.Handler) http.Handler {
	mws := make([]func(http.Handler) http.Handler, 0, len(p))
	for _, s := range p {
		if s.Middleware != nil {
			mws = append(mws, s.Middleware)
		}
	}
	return mws
}

// NewPipeline declares the request pipeline. deps may be partially empty
// when the pipeline is only inspected, as the pipeline command does.
func NewPipeline(deps Deps) Pipeline {
	cfg := deps.Config
	funnel := deps.funnel()

	bodyLimit := int64(10 << 20)
	if cfg != nil && cfg.Server.BodyLimit > 0 {
		bodyLimit = cfg.Server.BodyLimit
	}

	maxIDLength := requestctx.DefaultMaxIDLength
	if cfg != nil {
		maxIDLength = cfg.Server.MaxRequestIDLength
	}

	return Pipeline{
		{
			Name:        "request_id",
			Description: "tag request with X-Request-ID",
			Include:     Always,
			Middleware:  servermw.RequestIDLimit(maxIDLength),
		},
		{
			Name:        "real_ip",
			Description: "resolve client address from proxy headers",
			Include:     WhenTrustProxy,
			Middleware:  chimw.RealIP,
		},
		{
			Name:        "metrics",
			Description: "request telemetry",
			Include:     Always,
			Middleware:  servermw.RequestMetrics(deps.Metrics),
		},
		{
			Name:        "inflight",
			Description: "count in-flight requests for drain",
			Include:     Always,
			Middleware:  servermw.InFlight(deps.tracker(), deps.Metrics),
		},
		{
			Name:        "access_log",
			Description: "one access record per request",
			Include:     OutsideDevelopment,
			Middleware:  servermw.AccessLog(deps.AccessLogger),
		},
		{
			Name:        "cors",
			Description: "origin policy",
			Include:     OutsideDevelopment,
			Middleware:  servermw.CORS(cfg),
		},
		{
			Name:        "security_headers",
			Description: "protective response headers",
			Include:     OutsideDevelopment,
			Middleware:  servermw.SecurityHeaders,
		},
		{
			Name:        "compression",
			Description: "compress eligible responses",
			Include:     OutsideDevelopment,
			Middleware:  servermw.Compression,
		},
		{
			Name:        "rate_limit",
			Description: "per-client admission limiter",
			Include:     OutsideDevelopment,
			Middleware:  servermw.RateLimit(deps.Limiter, deps.Metrics, deps.Logger),
		},
		{
			Name:        "body_limit",
			Description: "cap request body size",
			Include:     Always,
			Middleware:  chimw.RequestSize(bodyLimit),
		},
		{
			Name:        "recovery",
			Description: "convert panics to error responses",
			Include:     Always,
			Middleware:  funnel.Recovery,
		},
	}
}
