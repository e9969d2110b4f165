package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/example"
	"github.com/apistarter/apistarter/internal/server/handlers"
	servermw "github.com/apistarter/apistarter/internal/server/middleware"
	"github.com/apistarter/apistarter/internal/server/respond"
	"github.com/apistarter/apistarter/internal/shutdown"
)

func testConfig(mode config.Mode) *config.Config {
	cfg := config.Default()
	cfg.Mode = mode
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	funnel := servermw.NewFunnel(cfg.Mode, nil, nil)
	return New(Deps{
		Config: cfg,
		Build:  handlers.BuildInfo{Name: "apistarter", Version: "1.2.3"},
		Funnel: funnel,
		Mounts: map[string]func(chi.Router){
			"/api/example": example.NewHandlers(example.NewStore()).Routes(funnel),
		},
	})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPipelineStages(t *testing.T) {
	all := []string{
		"request_id", "real_ip", "metrics", "inflight", "access_log", "cors",
		"security_headers", "compression", "rate_limit", "body_limit", "recovery",
	}

	t.Run("production mounts every stage", func(t *testing.T) {
		cfg := testConfig(config.ModeProduction)
		assert.Equal(t, all, NewPipeline(Deps{Config: cfg}).Active(cfg).Names())
	})

	t.Run("development skips security stages", func(t *testing.T) {
		cfg := testConfig(config.ModeDevelopment)
		assert.Equal(t,
			[]string{"request_id", "real_ip", "metrics", "inflight", "body_limit", "recovery"},
			NewPipeline(Deps{Config: cfg}).Active(cfg).Names())
	})

	t.Run("real_ip follows trust_proxy", func(t *testing.T) {
		cfg := testConfig(config.ModeTest)
		cfg.Server.TrustProxy = false
		assert.NotContains(t, NewPipeline(Deps{Config: cfg}).Active(cfg).Names(), "real_ip")
	})

	t.Run("declared order is fixed", func(t *testing.T) {
		assert.Equal(t, all, NewPipeline(Deps{}).Names())
	})

	t.Run("request id is outermost and recovery innermost", func(t *testing.T) {
		for _, mode := range []config.Mode{config.ModeDevelopment, config.ModeProduction, config.ModeTest} {
			names := NewPipeline(Deps{}).Active(testConfig(mode)).Names()
			assert.Equal(t, "request_id", names[0], mode)
			assert.Equal(t, "recovery", names[len(names)-1], mode)
		}
	})
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, testConfig(config.ModeTest))

	t.Run("root", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body handlers.RootResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "apistarter Server", body.Message)
		assert.Equal(t, "1.2.3", body.Version)
		assert.Equal(t, "/api/example", body.Endpoints["api"])
	})

	t.Run("health endpoints", func(t *testing.T) {
		for _, path := range []string{"/health", "/health/live", "/health/ready"} {
			rec := do(t, s, http.MethodGet, path, "")
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})

	t.Run("version", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/version", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics without exporter", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("mounted resource", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/example", `{"name":"Ada","email":"ada@example.com"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)

		rec = do(t, s, http.MethodGet, "/api/example", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var env respond.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.NotNil(t, env.Count)
		assert.Equal(t, 1, *env.Count)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/nope", "")
		require.Equal(t, http.StatusNotFound, rec.Code)

		var env respond.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Equal(t, servermw.NotFoundLabel, env.Error)
		assert.Equal(t, servermw.NotFoundMessage, env.Message)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/version", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("request id echoed", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/health/live", "")
		assert.NotEmpty(t, rec.Header().Get(servermw.RequestIDHeader))
	})
}

func TestServerEchoesLongRequestID(t *testing.T) {
	cfg := testConfig(config.ModeProduction)
	s := newTestServer(t, cfg)

	inbound := strings.Repeat("r", 200)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(servermw.RequestIDHeader, inbound)
	req.RemoteAddr = "192.0.2.11:40000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, inbound, rec.Header().Get(servermw.RequestIDHeader))

	cfg = testConfig(config.ModeTest)
	cfg.Server.MaxRequestIDLength = 64
	s = newTestServer(t, cfg)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, inbound, rec.Header().Get(servermw.RequestIDHeader))
}

func TestServerProductionStages(t *testing.T) {
	cfg := testConfig(config.ModeProduction)
	cfg.RateLimit.Points = 2
	s := newTestServer(t, cfg)

	rec := do(t, s, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))

	do(t, s, http.MethodGet, "/health/live", "")
	rec = do(t, s, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestServerDevelopmentSkipsSecurityStages(t *testing.T) {
	cfg := testConfig(config.ModeDevelopment)
	cfg.RateLimit.Points = 1
	s := newTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		rec := do(t, s, http.MethodGet, "/health/live", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Content-Type-Options"))
		assert.Empty(t, rec.Header().Get("RateLimit-Limit"))
	}
}

func TestServerBodyLimit(t *testing.T) {
	cfg := testConfig(config.ModeTest)
	cfg.Server.BodyLimit = 64
	s := newTestServer(t, cfg)

	body := `{"name":"` + strings.Repeat("a", 200) + `","email":"a@example.com"}`
	rec := do(t, s, http.MethodPost, "/api/example", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServerReadinessFollowsCoordinator(t *testing.T) {
	cfg := testConfig(config.ModeTest)
	coord := shutdown.NewCoordinator(time.Second)
	s := New(Deps{Config: cfg, Coordinator: coord})

	rec := do(t, s, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- coord.Run(ctx, drainerFunc(func(context.Context) error { return nil })) }()
	coord.Trigger("test")
	<-done
	cancel()

	rec = do(t, s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerListenServeShutdown(t *testing.T) {
	s := newTestServer(t, testConfig(config.ModeTest))

	ln, err := s.Listen()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestServerListenAddressInUse(t *testing.T) {
	first := newTestServer(t, testConfig(config.ModeTest))
	ln, err := first.Listen()
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(config.ModeTest)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	cfg.Server.Port, err = strconv.Atoi(portStr)
	require.NoError(t, err)

	_, err = newTestServer(t, cfg).Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

type drainerFunc func(ctx context.Context) error

func (f drainerFunc) Shutdown(ctx context.Context) error { return f(ctx) }
