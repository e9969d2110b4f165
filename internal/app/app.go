// Package app is the explicitly constructed application context. It builds
// every component once, owns the process lifecycle, and is the single
// teardown point.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/example"
	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
	"github.com/apistarter/apistarter/internal/ratelimit"
	"github.com/apistarter/apistarter/internal/server"
	"github.com/apistarter/apistarter/internal/server/handlers"
	servermw "github.com/apistarter/apistarter/internal/server/middleware"
	"github.com/apistarter/apistarter/internal/shutdown"
)

// MountFunc builds a route group once the error funnel exists.
type MountFunc func(funnel *servermw.Funnel) func(chi.Router)

type options struct {
	logger       observability.Logger
	accessLogger observability.Logger
	system       *telemetry.System
	build        handlers.BuildInfo
	mounts       map[string]MountFunc
	signals      bool
}

// Option customizes an App.
type Option func(*options)

// WithLogger replaces the process logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAccessLogger replaces the access channel logger.
func WithAccessLogger(logger observability.Logger) Option {
	return func(o *options) { o.accessLogger = logger }
}

// WithTelemetrySystem records metrics into sys instead of starting the
// Prometheus exporter.
func WithTelemetrySystem(sys *telemetry.System) Option {
	return func(o *options) { o.system = sys }
}

// WithBuildInfo sets the identity served on / and /version.
func WithBuildInfo(build handlers.BuildInfo) Option {
	return func(o *options) { o.build = build }
}

// WithMount adds a route group under prefix.
func WithMount(prefix string, mount MountFunc) Option {
	return func(o *options) { o.mounts[prefix] = mount }
}

// WithoutSignals leaves OS signals alone; only context cancellation and
// explicit triggers stop the process.
func WithoutSignals() Option {
	return func(o *options) { o.signals = false }
}

// App holds every long-lived component of the service.
type App struct {
	cfg          *config.Config
	logger       observability.Logger
	accessLogger observability.Logger
	telemetry    *observability.Telemetry
	metrics      *metrics.Recorder
	limiter      *ratelimit.Limiter
	janitor      *ratelimit.Janitor
	coordinator  *shutdown.Coordinator
	health       *handlers.HealthManager
	server       *server.Server
	signals      bool

	addr      atomic.Value
	ready     chan struct{}
	closeOnce sync.Once
}

// New builds the application from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	o := &options{
		build:   handlers.BuildInfo{Name: cfg.App.Name, Version: "dev"},
		mounts:  map[string]MountFunc{},
		signals: true,
	}
	o.mounts["/api/example"] = func(funnel *servermw.Funnel) func(chi.Router) {
		return example.NewHandlers(example.NewStore()).Routes(funnel)
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.build.Name == "" {
		o.build.Name = cfg.App.Name
	}

	a := &App{cfg: cfg, signals: o.signals, ready: make(chan struct{})}

	var err error
	a.logger = o.logger
	if a.logger == nil {
		if a.logger, err = observability.NewServerLogger(cfg.App.Name, cfg.Logging.Level, cfg.Mode, cfg.App.Name); err != nil {
			return nil, err
		}
	}
	a.accessLogger = o.accessLogger
	if a.accessLogger == nil {
		if a.accessLogger, err = observability.NewAccessLogger(cfg.App.Name, cfg.Logging.Level, cfg.Mode); err != nil {
			return nil, err
		}
	}

	sys := o.system
	if sys == nil && cfg.Metrics.Enabled && cfg.Mode != config.ModeTest {
		a.telemetry, err = observability.InitMetrics(cfg.App.Name, cfg.Metrics.Port)
		if err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
		sys = a.telemetry.System
	}
	a.metrics = metrics.NewRecorder(sys)

	a.coordinator = shutdown.NewCoordinator(cfg.Server.ShutdownTimeout,
		shutdown.WithLogger(a.logger),
		shutdown.WithMetrics(a.metrics))

	a.limiter = ratelimit.New(cfg.RateLimit.Points, cfg.RateLimit.Window())
	a.janitor, err = ratelimit.NewJanitor(a.limiter, cfg.RateLimit.SweepSchedule,
		a.coordinator.Guard, a.logger, a.metrics)
	if err != nil {
		_ = a.telemetry.Close()
		return nil, err
	}

	a.health = handlers.NewHealthManager(o.build.Version, string(cfg.Mode))
	if a.telemetry != nil {
		a.health.RegisterChecker("telemetry", handlers.HealthCheckerFunc(func(context.Context) error {
			if a.telemetry.Exporter == nil {
				return fmt.Errorf("prometheus exporter not running")
			}
			return nil
		}))
	}

	funnel := servermw.NewFunnel(cfg.Mode, a.logger, a.metrics)
	mounts := make(map[string]func(chi.Router), len(o.mounts))
	for prefix, mount := range o.mounts {
		mounts[prefix] = mount(funnel)
	}

	metricsPort := 0
	if a.telemetry != nil {
		metricsPort = a.telemetry.Port
	}

	a.server = server.New(server.Deps{
		Config:       cfg,
		Logger:       a.logger,
		AccessLogger: a.accessLogger,
		Metrics:      a.metrics,
		Limiter:      a.limiter,
		Coordinator:  a.coordinator,
		Health:       a.health,
		Build:        o.build,
		MetricsPort:  metricsPort,
		Mounts:       mounts,
		Funnel:       funnel,
	})

	return a, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the process logger.
func (a *App) Logger() observability.Logger { return a.logger }

// Coordinator returns the shutdown coordinator.
func (a *App) Coordinator() *shutdown.Coordinator { return a.coordinator }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// Ready is closed once the listen socket is open.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the bound listen address, or "" before Ready.
func (a *App) Addr() string {
	addr, _ := a.addr.Load().(string)
	return addr
}

// Run starts serving and blocks until the coordinator decides the process
// exit code. Termination signals, cancellation of ctx and asynchronous
// faults all end the run. Resources are released before Run returns.
func (a *App) Run(ctx context.Context) int {
	defer a.Close()

	ln, err := a.server.Listen()
	if err != nil {
		return a.coordinator.AbortStartup(err)
	}

	if a.signals {
		stop := a.coordinator.WatchSignals(ctx)
		defer stop()
	}

	a.addr.Store(ln.Addr().String())
	close(a.ready)

	a.metrics.SetServerStartTime(time.Now().Unix())
	a.logger.Info("Server started",
		zap.String("addr", a.Addr()),
		zap.Int("rate_limit_points", a.cfg.RateLimit.Points),
		zap.Duration("rate_limit_window", a.cfg.RateLimit.Window()),
		zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout))

	a.janitor.Start()

	var g errgroup.Group
	g.Go(func() error {
		var serveErr error
		a.coordinator.Guard("http_server", func() {
			serveErr = a.server.Serve(ln)
		})()
		if serveErr != nil {
			a.coordinator.Fatal("http_server", serveErr)
		}
		return serveErr
	})

	code := a.coordinator.Run(ctx, a.server)
	if code != shutdown.ExitGraceful {
		// Forced exit: drop whatever is still connected
		_ = a.server.Close()
	}

	if err := g.Wait(); err != nil {
		a.logger.Debug("HTTP server stopped with error", zap.Error(err))
	}
	return code
}

// Close releases every resource the app owns. It is safe to call more than
// once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		a.janitor.Stop(ctx)
		if err := a.telemetry.Close(); err != nil {
			a.logger.Warn("Failed to stop metrics exporter", zap.Error(err))
		}
		// Sync errors on stderr are benign
		_ = a.logger.Sync()
		_ = a.accessLogger.Sync()
	})
}
