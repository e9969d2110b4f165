package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/apistarter/apistarter/internal/server/respond"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Memory      MemoryInfo        `json:"memory"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// MemoryInfo is a human-readable snapshot of runtime memory.
type MemoryInfo struct {
	RSS       string `json:"rss"`
	HeapTotal string `json:"heapTotal"`
	HeapUsed  string `json:"heapUsed"`
	External  string `json:"external"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// Overall statuses reported by the health endpoints.
const (
	StatusOK        = "OK"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthManager manages health checks and probe states
type HealthManager struct {
	mu          sync.RWMutex
	checkers    map[string]HealthChecker
	readiness   map[string]HealthChecker
	version     string
	environment string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version, environment string) *HealthManager {
	return &HealthManager{
		checkers:    make(map[string]HealthChecker),
		readiness:   make(map[string]HealthChecker),
		version:     version,
		environment: environment,
	}
}

// RegisterChecker registers a checker consulted by every endpoint.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// RegisterReadinessChecker registers a checker consulted only by the
// readiness probe.
func (hm *HealthManager) RegisterReadinessChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.readiness[name] = checker
}

// runHealthChecks executes the registered health checks
func (hm *HealthManager) runHealthChecks(ctx context.Context, includeReadiness bool) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers)+len(hm.readiness))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	if includeReadiness {
		for name, c := range hm.readiness {
			checkers[name] = c
		}
	}
	hm.mu.RUnlock()

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		select {
		case <-ctx.Done():
			checks[name] = "timeout"
			continue
		default:
		}

		err := checkers[name].CheckHealth(ctx)
		switch {
		case err == nil:
			checks[name] = "healthy"
		case errors.Is(err, ErrDegraded):
			checks[name] = "degraded"
		default:
			checks[name] = "unhealthy"
		}
	}

	return checks
}

// ErrDegraded marks a check result as degraded rather than unhealthy.
var ErrDegraded = errors.New("degraded")

// determineOverallStatus determines overall health status
func determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == "unhealthy" {
			return StatusUnhealthy
		}
		if status == "degraded" || status == "timeout" {
			degraded = true
		}
	}

	if degraded {
		return StatusDegraded
	}

	return StatusOK
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx, false)
	status := determineOverallStatus(checks)

	if status == StatusUnhealthy {
		writeUnavailable(w, "aggregate health check failed", "aggregate", status, checks)
		return
	}

	_ = respond.JSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		Version:     hm.version,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Environment: hm.environment,
		Memory:      readMemory(),
		Checks:      checks,
	})
}

// LivenessHandler handles liveness probe requests
// Liveness indicates if the application is running
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", 2*time.Second, false)
}

// ReadinessHandler handles readiness probe requests
// Readiness indicates if the application is ready to serve traffic
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second, true)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration, includeReadiness bool) {
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx, includeReadiness)
	status := determineOverallStatus(checks)

	if status == StatusUnhealthy {
		writeUnavailable(w, probe+" probe failed", probe, status, checks)
		return
	}

	_ = respond.JSON(w, http.StatusOK, ProbeResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func writeUnavailable(w http.ResponseWriter, message, probe, status string, checks map[string]string) {
	details := map[string]any{
		"probe":  probe,
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	_ = respond.Failure(w, http.StatusServiceUnavailable,
		http.StatusText(http.StatusServiceUnavailable), message, details)
}

func readMemory() MemoryInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryInfo{
		RSS:       humanize.Bytes(m.Sys),
		HeapTotal: humanize.Bytes(m.HeapSys),
		HeapUsed:  humanize.Bytes(m.HeapAlloc),
		External:  humanize.Bytes(m.StackSys + m.MSpanSys + m.MCacheSys + m.BuckHashSys + m.GCSys + m.OtherSys),
	}
}

// AcceptingReporter reports whether the process still admits traffic.
type AcceptingReporter interface {
	Accepting() bool
}

// ShutdownChecker fails once reporter stops accepting traffic.
func ShutdownChecker(reporter AcceptingReporter) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		if reporter != nil && !reporter.Accepting() {
			return errors.New("shutting down")
		}
		return nil
	})
}
