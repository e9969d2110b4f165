package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
)

// DefaultDrainTimeout bounds the drain phase when none is configured.
const DefaultDrainTimeout = 30 * time.Second

// Drainer stops accepting work and waits for in-flight work to finish, or
// for ctx to expire. *http.Server satisfies it.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Trigger names what initiated termination. Fatal marks a fault reported
// through Fatal; Err carries its cause.
type Trigger struct {
	Name  string
	Err   error
	Fatal bool
}

// Coordinator owns the shutdown state. Only Run and AbortStartup mutate it;
// every other method is safe to call from any goroutine.
type Coordinator struct {
	state        atomic.Int32
	inFlight     atomic.Int64
	triggers     chan Trigger
	drainTimeout time.Duration
	logger       observability.Logger
	metrics      *metrics.Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for lifecycle records.
func WithLogger(logger observability.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder for shutdown counters.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = recorder
	}
}

// NewCoordinator returns a coordinator in the Running state.
func NewCoordinator(drainTimeout time.Duration, opts ...Option) *Coordinator {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	c := &Coordinator{
		triggers:     make(chan Trigger, 16),
		drainTimeout: drainTimeout,
		logger:       observability.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Accepting reports whether new connections may be admitted.
func (c *Coordinator) Accepting() bool {
	return c.State() == Running
}

// DrainTimeout returns the drain ceiling.
func (c *Coordinator) DrainTimeout() time.Duration {
	return c.drainTimeout
}

// RequestStarted and RequestFinished maintain the in-flight count reported in
// drain logs. Both return the updated count.
func (c *Coordinator) RequestStarted() int64 {
	return c.inFlight.Add(1)
}

func (c *Coordinator) RequestFinished() int64 {
	return c.inFlight.Add(-1)
}

// InFlight returns the number of requests currently being served.
func (c *Coordinator) InFlight() int64 {
	return c.inFlight.Load()
}

// Trigger requests termination. It never blocks.
func (c *Coordinator) Trigger(name string) {
	c.send(Trigger{Name: name})
}

// Fatal reports a fault that escaped request handling. The error is logged in
// full and termination is requested; the process state is no longer trusted.
func (c *Coordinator) Fatal(source string, err error) {
	if err == nil {
		err = errors.New("unknown fatal fault")
	}
	c.logger.Error("Fatal asynchronous fault",
		zap.String("source", source),
		zap.String("state", c.State().String()),
		zap.String("detail", fmt.Sprintf("%+v", err)),
		zap.Error(err),
		zap.Stack("stack"))
	c.send(Trigger{Name: "fatal:" + source, Err: err, Fatal: true})
}

func (c *Coordinator) send(t Trigger) {
	select {
	case c.triggers <- t:
	default:
		// A drain is already pending; the extra trigger would be ignored anyway.
		c.logger.Warn("Termination trigger dropped, shutdown already pending",
			zap.String("trigger", t.Name))
	}
}

// AbortStartup handles a listen-socket failure: no traffic was ever admitted,
// so there is nothing to drain. It returns the exit code.
func (c *Coordinator) AbortStartup(err error) int {
	_, action := c.apply(EventListenFailed)
	code := action.ExitCode()
	if action != ActionExitImmediate {
		c.logger.Warn("Startup failure reported after startup",
			zap.Error(err),
			zap.String("state", c.State().String()))
		return code
	}

	c.logger.Error("Failed to start server",
		append([]zap.Field{zap.Error(err)}, exitFields(code)...)...)
	c.metrics.ShutdownCompleted("startup_failure")
	return code
}

// Run blocks until the first termination trigger (or cancellation of ctx),
// drains d within the drain timeout and returns the process exit code:
// 0 when the drain completed, 1 when the timeout fired first or when the
// first trigger was a fatal fault.
func (c *Coordinator) Run(ctx context.Context, d Drainer) int {
	var first Trigger
	select {
	case first = <-c.triggers:
	case <-ctx.Done():
		first = Trigger{Name: "context_canceled", Err: ctx.Err()}
	}

	_, action := c.apply(EventTrigger)
	if action != ActionBeginDrain {
		c.logger.Warn("Shutdown requested in terminal state",
			zap.String("trigger", first.Name),
			zap.String("state", c.State().String()))
		return ExitForced
	}

	c.metrics.ShutdownTriggered(first.Name)
	startFields := []zap.Field{
		zap.String("trigger", first.Name),
		zap.Int64("in_flight", c.InFlight()),
		zap.Duration("drain_timeout", c.drainTimeout),
	}
	if first.Err != nil {
		startFields = append(startFields, zap.Error(first.Err))
	}
	c.logger.Info("Shutdown initiated, draining in-flight requests", startFields...)

	return c.drain(d, first)
}

func (c *Coordinator) drain(d Drainer, first Trigger) int {
	started := time.Now()
	drainCtx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if d == nil {
			done <- nil
			return
		}
		done <- d.Shutdown(drainCtx)
	}()

	for {
		select {
		case t := <-c.triggers:
			_, action := c.apply(EventTrigger)
			c.logger.Info("Termination trigger ignored, already draining",
				zap.String("trigger", t.Name),
				zap.String("action", action.String()),
				zap.Int64("in_flight", c.InFlight()))

		case err := <-done:
			return c.finish(err, first, started)

		case <-drainCtx.Done():
			// Completion that raced the deadline still counts as graceful.
			select {
			case err := <-done:
				return c.finish(err, first, started)
			default:
			}
			return c.timeout(started)
		}
	}
}

func (c *Coordinator) finish(err error, first Trigger, started time.Time) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return c.timeout(started)
	}

	if err != nil {
		_, action := c.apply(EventTimeout)
		code := action.ExitCode()
		c.logger.Error("Server shutdown failed",
			append([]zap.Field{
				zap.Error(err),
				zap.Duration("elapsed", time.Since(started)),
			}, exitFields(code)...)...)
		c.metrics.ShutdownCompleted("error")
		return code
	}

	_, action := c.apply(EventDrained)
	if first.Fatal {
		code := ExitForced
		c.logger.Warn("Drain complete after fatal fault",
			append([]zap.Field{
				zap.String("trigger", first.Name),
				zap.Duration("elapsed", time.Since(started)),
			}, exitFields(code)...)...)
		c.metrics.ShutdownCompleted("fatal")
		return code
	}

	code := action.ExitCode()
	c.logger.Info("Graceful shutdown complete",
		append([]zap.Field{zap.Duration("elapsed", time.Since(started))}, exitFields(code)...)...)
	c.metrics.ShutdownCompleted("graceful")
	return code
}

func (c *Coordinator) timeout(started time.Time) int {
	_, action := c.apply(EventTimeout)
	code := action.ExitCode()
	c.logger.Warn("Drain timeout elapsed, forcing exit",
		append([]zap.Field{
			zap.Int64("in_flight", c.InFlight()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("drain_timeout", c.drainTimeout),
		}, exitFields(code)...)...)
	c.metrics.ShutdownCompleted("timeout")
	return code
}

// apply runs Transition against the current state. The coordinator is the
// single writer, the CAS only guards against misuse.
func (c *Coordinator) apply(e Event) (State, Action) {
	for {
		cur := c.State()
		next, action := Transition(cur, e)
		if next == cur || c.state.CompareAndSwap(int32(cur), int32(next)) {
			return next, action
		}
	}
}

func exitFields(code int) []zap.Field {
	fields := []zap.Field{zap.Int("exit_code", code)}
	if info, ok := foundry.GetExitCodeInfo(foundry.ExitCode(code)); ok {
		fields = append(fields,
			zap.String("exit_name", info.Name),
			zap.String("exit_category", info.Category))
	}
	return fields
}
