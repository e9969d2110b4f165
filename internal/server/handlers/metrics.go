package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/observability"
	"github.com/apistarter/apistarter/internal/server/respond"
)

// MetricsProxy serves Prometheus metrics from the internal exporter so callers
// can scrape /metrics on the main HTTP server.
type MetricsProxy struct {
	// Port is the exporter port on 127.0.0.1. Zero means metrics are disabled.
	Port   int
	Client *http.Client
	Logger observability.Logger
}

// NewMetricsProxy returns a proxy for the exporter listening on port.
func NewMetricsProxy(port int, logger observability.Logger) *MetricsProxy {
	if logger == nil {
		logger = observability.Nop()
	}
	return &MetricsProxy{
		Port:   port,
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

func (p *MetricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p == nil || p.Port == 0 {
		_ = respond.Failure(w, http.StatusServiceUnavailable,
			http.StatusText(http.StatusServiceUnavailable), "Metrics exporter not initialized", nil)
		return
	}

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", p.Port)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		p.Logger.Error("Unable to construct metrics request",
			zap.String("metrics_url", metricsURL),
			zap.Error(err))
		_ = respond.Failure(w, http.StatusInternalServerError,
			http.StatusText(http.StatusInternalServerError), "Unable to construct metrics request", nil)
		return
	}

	// Preserve caller hint for content negotiation
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		p.Logger.Warn("Prometheus exporter unavailable",
			zap.String("metrics_url", metricsURL),
			zap.Error(err))
		_ = respond.Failure(w, http.StatusBadGateway,
			http.StatusText(http.StatusBadGateway), "Prometheus exporter unavailable", nil)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.Logger.Warn("Failed to close metrics response body", zap.Error(err))
		}
	}()

	for key, values := range resp.Header {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	// Ensure we always advertise Prometheus content type
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.Logger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
