package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apistarter/apistarter/internal/app"
	"github.com/apistarter/apistarter/internal/config"
	servermw "github.com/apistarter/apistarter/internal/server/middleware"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

func integrationConfig(metricsEnabled bool) *config.Config {
	cfg := config.Default()
	cfg.Mode = config.ModeProduction
	cfg.App.Name = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.RateLimit.Points = 1000
	cfg.Metrics.Enabled = metricsEnabled
	cfg.Metrics.Port = 0
	return cfg
}

func testRoutes(funnel *servermw.Funnel) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/fast", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("fast response"))
		})
		r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write([]byte("slow response"))
		})
		r.Get("/error", funnel.Handle(func(w http.ResponseWriter, r *http.Request) error {
			return errors.New("boom")
		}))
	}
}

// startApp runs a full app and skips when the sandbox refuses sockets.
func startApp(t *testing.T, cfg *config.Config) (*app.App, string) {
	t.Helper()

	a, err := app.New(cfg,
		app.WithLogger(zap.NewNop()),
		app.WithAccessLogger(zap.NewNop()),
		app.WithMount("/load", testRoutes),
		app.WithoutSignals())
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case code := <-done:
		cancel()
		t.Skipf("app could not listen (exit %d)", code)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("app did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case code := <-done:
			assert.Equal(t, 0, code)
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})
	return a, "http://" + a.Addr()
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	_, serverURL := startApp(t, integrationConfig(true))
	client := &http.Client{Timeout: 5 * time.Second}

	const numRequests = 50
	const numWorkers = 10

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var path string
				switch reqNum % 4 {
				case 0:
					path = "/load/fast"
				case 1:
					path = "/load/slow"
				case 2:
					path = "/load/error"
				default:
					path = "/health"
				}

				resp, err := client.Get(serverURL + path)
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	// The exporter may batch; poll until request counters show up
	var metricsContent string
	require.Eventually(t, func() bool {
		resp, err := client.Get(serverURL + "/metrics")
		if err != nil {
			return false
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		metricsContent = string(body)
		return strings.Contains(metricsContent, "test_http_requests_total")
	}, 3*time.Second, 50*time.Millisecond)

	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	_, serverURL := startApp(t, integrationConfig(true))
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(serverURL + "/load/fast")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain"),
		"Expected Prometheus content type, got: %s", contentType)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)

	metricLines := 0
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if !strings.HasPrefix(line, "#") && strings.TrimSpace(line) != "" {
			metricLines++
		}
	}
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	_, serverURL := startApp(t, integrationConfig(false))
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(serverURL + "/load/fast")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProductionPipeline_Integration(t *testing.T) {
	_, serverURL := startApp(t, integrationConfig(false))
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodGet, serverURL+"/load/error", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "integration-req-1")

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "integration-req-1", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("RateLimit-Limit"))
	assert.Contains(t, string(body), servermw.GenericErrorMessage)
	assert.NotContains(t, string(body), "boom")
}
