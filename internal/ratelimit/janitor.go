package ratelimit

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/metrics"
	"github.com/apistarter/apistarter/internal/observability"
)

// GuardFunc wraps a background job so a panic inside it is reported instead
// of silently killing the process.
type GuardFunc func(name string, fn func()) func()

// Janitor periodically sweeps expired limiter entries.
type Janitor struct {
	cron    *cron.Cron
	limiter *Limiter
	logger  observability.Logger
	metrics *metrics.Recorder
}

// NewJanitor schedules limiter sweeps on schedule (standard cron spec or
// "@every <duration>"). guard may be nil.
func NewJanitor(limiter *Limiter, schedule string, guard GuardFunc, logger observability.Logger, recorder *metrics.Recorder) (*Janitor, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	j := &Janitor{
		cron:    cron.New(),
		limiter: limiter,
		logger:  logger,
		metrics: recorder,
	}

	job := j.sweep
	if guard != nil {
		job = guard("ratelimit-janitor", j.sweep)
	}

	if _, err := j.cron.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("schedule limiter sweep %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running scheduled sweeps in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish or for
// ctx to expire.
func (j *Janitor) Stop(ctx context.Context) {
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

func (j *Janitor) sweep() {
	removed := j.limiter.Sweep()
	remaining := j.limiter.Len()
	j.metrics.SetRateLimitEntries(remaining)
	if removed > 0 {
		j.logger.Debug("Swept expired rate limit entries",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}
