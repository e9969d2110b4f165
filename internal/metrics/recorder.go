package metrics

import (
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
)

// Metric names following Prometheus conventions
const (
	HTTPRequestsTotal      = "http_requests_total"
	HTTPRequestDurationMs  = "http_request_duration_ms"
	HTTPRequestSizeBytes   = "http_request_size_bytes"
	HTTPResponseSizeBytes  = "http_response_size_bytes"
	HTTPErrorsTotal        = "http_errors_total"
	HTTPInFlightRequests   = "http_inflight_requests"
	RateLimitRejectedTotal = "ratelimit_rejected_total"
	RateLimitEntries       = "ratelimit_entries"
	RouteNotFoundTotal     = "route_not_found_total"
	ErrorsTotal            = "errors_total"
	PanicsTotal            = "panics_total"
	ShutdownTriggersTotal  = "shutdown_triggers_total"
	ShutdownCompletedTotal = "shutdown_completed_total"
	ServerStartTime        = "app_server_start_time_seconds"
)

// Recorder emits application metrics. A nil Recorder, or one without a
// telemetry system, records nothing.
type Recorder struct {
	sys *telemetry.System
}

// NewRecorder wraps sys.
func NewRecorder(sys *telemetry.System) *Recorder {
	return &Recorder{sys: sys}
}

func (r *Recorder) enabled() bool {
	return r != nil && r.sys != nil
}

// RequestCompleted records one finished HTTP request.
func (r *Recorder) RequestCompleted(method, endpoint string, status int, duration time.Duration, requestSize, responseSize int64) {
	if !r.enabled() {
		return
	}

	// Common labels for all metrics (avoid high cardinality)
	commonLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	}

	_ = r.sys.Counter(HTTPRequestsTotal, 1, commonLabels)
	_ = r.sys.Histogram(HTTPRequestDurationMs, duration, commonLabels)

	sizeLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
	}
	_ = r.sys.Gauge(HTTPRequestSizeBytes, float64(requestSize), sizeLabels)
	_ = r.sys.Gauge(HTTPResponseSizeBytes, float64(responseSize), sizeLabels)

	if status >= 400 {
		errorType := "client_error"
		if status >= 500 {
			errorType = "server_error"
		}
		_ = r.sys.Counter(HTTPErrorsTotal, 1, map[string]string{
			"method":     method,
			"endpoint":   endpoint,
			"status":     strconv.Itoa(status),
			"error_type": errorType,
		})
	}
}

// SetInFlight records the current number of in-flight requests.
func (r *Recorder) SetInFlight(count int64) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Gauge(HTTPInFlightRequests, float64(count), nil)
}

// RateLimited records an admission rejection.
func (r *Recorder) RateLimited() {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(RateLimitRejectedTotal, 1, nil)
}

// SetRateLimitEntries records the number of live limiter entries.
func (r *Recorder) SetRateLimitEntries(count int) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Gauge(RateLimitEntries, float64(count), nil)
}

// RouteNotFound records a request no route consumed.
func (r *Recorder) RouteNotFound(method string) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(RouteNotFoundTotal, 1, map[string]string{"method": method})
}

// RecordError records an error surfaced to a client.
func (r *Recorder) RecordError(errorCode string, httpStatus int) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(ErrorsTotal, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic records a panic recovered inside a request.
func (r *Recorder) RecordPanic() {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(PanicsTotal, 1, nil)
}

// ShutdownTriggered records a termination trigger by name.
func (r *Recorder) ShutdownTriggered(trigger string) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(ShutdownTriggersTotal, 1, map[string]string{"trigger": trigger})
}

// ShutdownCompleted records how the drain ended: graceful, timeout or startup_failure.
func (r *Recorder) ShutdownCompleted(outcome string) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Counter(ShutdownCompletedTotal, 1, map[string]string{"outcome": outcome})
}

// SetServerStartTime records the server start time (Unix timestamp)
func (r *Recorder) SetServerStartTime(timestamp int64) {
	if !r.enabled() {
		return
	}
	_ = r.sys.Gauge(ServerStartTime, float64(timestamp), nil)
}
