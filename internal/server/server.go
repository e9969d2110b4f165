package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
	"github.com/apistarter/apistarter/internal/ratelimit"
	"github.com/apistarter/apistarter/internal/server/handlers"
	servermw "github.com/apistarter/apistarter/internal/server/middleware"
	"github.com/apistarter/apistarter/internal/shutdown"
)

// Deps are the collaborators the server is built from.
type Deps struct {
	Config       *config.Config
	Logger       observability.Logger
	AccessLogger observability.Logger
	Metrics      *metrics.Recorder
	Limiter      *ratelimit.Limiter
	Coordinator  *shutdown.Coordinator
	Health       *handlers.HealthManager
	Build        handlers.BuildInfo

	// MetricsPort is the Prometheus exporter port proxied at /metrics.
	// Zero disables the proxy.
	MetricsPort int

	// Mounts are extra route groups keyed by path prefix.
	Mounts map[string]func(chi.Router)

	// Funnel overrides the error funnel built from Config.
	Funnel *servermw.Funnel
}

func (d Deps) funnel() *servermw.Funnel {
	if d.Funnel != nil {
		return d.Funnel
	}
	mode := config.ModeDevelopment
	if d.Config != nil {
		mode = d.Config.Mode
	}
	return servermw.NewFunnel(mode, d.Logger, d.Metrics)
}

func (d Deps) tracker() servermw.InFlightTracker {
	if d.Coordinator == nil {
		return nil
	}
	return d.Coordinator
}

// Server represents the HTTP server
type Server struct {
	cfg      *config.Config
	deps     Deps
	logger   observability.Logger
	router   *chi.Mux
	server   *http.Server
	funnel   *servermw.Funnel
	pipeline Pipeline
}

// New creates a new HTTP server instance
func New(deps Deps) *Server {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}
	if deps.AccessLogger == nil {
		deps.AccessLogger = deps.Logger
	}
	if deps.Coordinator == nil {
		deps.Coordinator = shutdown.NewCoordinator(deps.Config.Server.ShutdownTimeout,
			shutdown.WithLogger(deps.Logger), shutdown.WithMetrics(deps.Metrics))
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(deps.Config.RateLimit.Points, deps.Config.RateLimit.Window())
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthManager(deps.Build.Version, string(deps.Config.Mode))
	}
	if deps.Build.Name == "" {
		deps.Build.Name = deps.Config.App.Name
	}
	deps.Funnel = deps.funnel()

	s := &Server{
		cfg:    deps.Config,
		deps:   deps,
		logger: deps.Logger,
		router: chi.NewRouter(),
		funnel: deps.Funnel,
	}

	s.pipeline = NewPipeline(deps)
	for _, mw := range s.pipeline.Active(s.cfg).Middlewares() {
		s.router.Use(mw)
	}

	// Unmatched routes and wrong methods end in the funnel
	s.router.NotFound(s.funnel.NotFound)
	s.router.MethodNotAllowed(s.funnel.MethodNotAllowed)

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// Listen opens the listen socket. Connections arriving after the coordinator
// leaves Running are refused.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.deps.Coordinator.GateListener(ln), nil
}

// Serve accepts connections on ln until Shutdown or Close. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("mode", string(s.cfg.Mode)),
		zap.Strings("pipeline", s.pipeline.Active(s.cfg).Names()))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests, or
// for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Close closes the listener and every open connection immediately.
func (s *Server) Close() error {
	return s.server.Close()
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pipeline returns the declared request pipeline.
func (s *Server) Pipeline() Pipeline {
	return s.pipeline
}

// Funnel returns the error funnel, for mounting handlers that return errors.
func (s *Server) Funnel() *servermw.Funnel {
	return s.funnel
}
