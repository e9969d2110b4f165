package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// Telemetry bundles the telemetry system with the Prometheus exporter that
// backs it.
type Telemetry struct {
	System   *telemetry.System
	Exporter *exporters.PrometheusExporter

	// Port is the port the Prometheus exporter is listening on
	Port int
}

// newTelemetrySystem is replaced in tests.
var newTelemetrySystem = telemetry.NewSystem

// InitMetrics initializes the telemetry system with Prometheus exporter.
// The exporter listens on the provided port (use 0 for random assignment).
func InitMetrics(serviceName string, port int, namespace ...string) (*Telemetry, error) {
	requestedPort := port
	if requestedPort < 0 {
		requestedPort = 0
	}

	metricNamespace := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		metricNamespace = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(metricNamespace, fmt.Sprintf(":%d", requestedPort))
	if err := exporter.Start(); err != nil {
		return nil, fmt.Errorf("start prometheus exporter: %w", err)
	}

	t := &Telemetry{Exporter: exporter, Port: requestedPort}
	if actualPort, err := resolvePort(exporter.GetAddr()); err == nil {
		t.Port = actualPort
	}

	sys, err := newTelemetrySystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		_ = exporter.Stop()
		return nil, fmt.Errorf("create telemetry system: %w", err)
	}
	t.System = sys
	return t, nil
}

// DisabledSystem returns a telemetry system that records nothing.
func DisabledSystem() *telemetry.System {
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false})
	if err != nil {
		return nil
	}
	return sys
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	return port, nil
}

// Close stops the Prometheus exporter.
func (t *Telemetry) Close() error {
	if t == nil || t.Exporter == nil {
		return nil
	}
	return t.Exporter.Stop()
}
