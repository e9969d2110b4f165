package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/apistarter/apistarter/internal/server/respond"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

type stubReporter struct {
	accepting atomic.Bool
}

func (s *stubReporter) Accepting() bool { return s.accepting.Load() }

func TestHealthHandlerReturnsOKStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3", "production")
	manager.RegisterChecker("ok", stubChecker{err: nil})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != StatusOK {
		t.Fatalf("expected OK status, got %s", resp.Status)
	}

	if resp.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", resp.Version)
	}

	if resp.Environment != "production" {
		t.Fatalf("expected environment production, got %s", resp.Environment)
	}

	if resp.Memory.RSS == "" || resp.Memory.HeapUsed == "" {
		t.Fatalf("expected memory usage to be reported, got %+v", resp.Memory)
	}

	if resp.Checks["ok"] != "healthy" {
		t.Fatalf("expected ok check to be healthy, got %s", resp.Checks["ok"])
	}
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3", "test")
	manager.RegisterChecker("db", stubChecker{err: errors.New("down")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var resp respond.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Success {
		t.Fatal("expected success=false")
	}

	details, ok := resp.Details.(map[string]interface{})
	if !ok {
		t.Fatalf("expected error details to include probe context")
	}

	checks, ok := details["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected checks in error details")
	}

	if status, ok := checks["db"].(string); !ok || status != "unhealthy" {
		t.Fatalf("expected db check to be unhealthy, got %v", checks["db"])
	}
}

func TestReadinessFailsWhileDraining(t *testing.T) {
	reporter := &stubReporter{}
	reporter.accepting.Store(true)

	manager := NewHealthManager("dev", "test")
	manager.RegisterReadinessChecker("shutdown", ShutdownChecker(reporter))

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready before shutdown, got %d", rec.Code)
	}

	reporter.accepting.Store(false)

	rec = httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", rec.Code)
	}

	// liveness and the aggregate endpoint ignore readiness-only checks
	rec = httptest.NewRecorder()
	manager.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected liveness to stay 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health to stay 200, got %d", rec.Code)
	}
}

func TestDetermineOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	status := determineOverallStatus(map[string]string{
		"db": "timeout",
	})

	if status != StatusDegraded {
		t.Fatalf("expected degraded status, got %s", status)
	}
}

func TestDegradedChecker(t *testing.T) {
	manager := NewHealthManager("dev", "test")
	manager.RegisterChecker("cache", stubChecker{err: ErrDegraded})

	rec := httptest.NewRecorder()
	manager.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	var resp ProbeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != StatusDegraded {
		t.Fatalf("expected 200 degraded, got %d %s", rec.Code, resp.Status)
	}
}
